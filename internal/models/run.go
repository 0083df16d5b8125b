package models

import "time"

// Phase is the orchestrator state for one pipeline run.
type Phase string

const (
	PhaseInit       Phase = "INIT"
	PhaseExtracting Phase = "EXTRACTING"
	PhaseSplitting  Phase = "SPLITTING"
	PhaseUploading  Phase = "UPLOADING"
	PhaseLinking    Phase = "LINKING"
	PhaseFinalizing Phase = "FINALIZING"
	PhaseDone       Phase = "DONE"
	PhaseFailed     Phase = "FAILED"
)

// ProgressEvent is emitted to the caller at phase boundaries and at least once
// per item processed within a phase. Percent is global (0..100); each phase
// owns a fixed sub-range so the overall bar increases monotonically.
type ProgressEvent struct {
	Phase   Phase  `json:"phase"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// FailedItem records a per-item recoverable failure. The item is excluded from
// downstream phases; the run itself continues.
type FailedItem struct {
	StatementIndex int    `json:"statementIndex" firestore:"statementIndex"`
	Range          string `json:"range,omitempty" firestore:"range,omitempty"`
	Phase          Phase  `json:"phase" firestore:"phase"`
	Reason         string `json:"reason" firestore:"reason"`
}

// UnlinkedStatement is a statement that finished the run without a verified
// hyperlink. Never silently dropped: every statement's outcome appears either
// here or in the linked set.
type UnlinkedStatement struct {
	StatementIndex int    `json:"statementIndex" firestore:"statementIndex"`
	Range          string `json:"range,omitempty" firestore:"range,omitempty"`
	Reason         string `json:"reason" firestore:"reason"`
}

// PipelineRun is the unit of orchestration state. It is mutated exclusively by
// the orchestrator as phases complete and is persisted after each phase so a
// crashed run can resume without re-producing completed artifacts.
type PipelineRun struct {
	ID           string                      `json:"id" firestore:"id"`
	Phase        Phase                       `json:"phase" firestore:"phase"`
	DocumentName string                      `json:"documentName" firestore:"documentName"`
	PatientName  string                      `json:"patientName" firestore:"patientName"`
	Statements   []Statement                 `json:"statements" firestore:"statements"`
	Artifacts    map[string]SplitArtifact    `json:"artifacts" firestore:"artifacts"` // keyed by PageRange.String()
	Uploaded     map[string]UploadedArtifact `json:"uploaded" firestore:"uploaded"`   // keyed by fingerprint
	FailedItems  []FailedItem                `json:"failedItems" firestore:"failedItems"`
	Unlinked     []UnlinkedStatement         `json:"unlinked" firestore:"unlinked"`
	StartedAt    time.Time                   `json:"startedAt" firestore:"startedAt"`
}

// PipelineResult is returned to the trigger interface when a run terminates.
// On a fatal error the partial result completed before the failure is still
// populated.
type PipelineResult struct {
	RunID              string              `json:"runId"`
	Phase              Phase               `json:"phase"`
	Statements         []Statement         `json:"statements"`
	LinkedStatements   int                 `json:"linkedStatements"`
	UnlinkedStatements []UnlinkedStatement `json:"unlinkedStatements"`
	FailedItems        []FailedItem        `json:"failedItems"`
	FinalDocument      []byte              `json:"-"`
	Summary            RunSummary          `json:"summary"`
}
