// Package pipeline orchestrates one document run end to end: parse the
// statement document, split the record PDF per page range, upload the split
// artifacts, hyperlink each statement to its artifact, and persist the edited
// document plus a history summary. Phases advance strictly in order; per-item
// failures are accumulated and excluded downstream, while input-level failures
// abort the run with a FAILED state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/medicalrecordflow/internal/docx"
	"github.com/Lllllllleong/medicalrecordflow/internal/models"
	"github.com/Lllllllleong/medicalrecordflow/internal/pagerange"
	"github.com/Lllllllleong/medicalrecordflow/internal/reconcile"
	"github.com/Lllllllleong/medicalrecordflow/internal/split"
	"github.com/Lllllllleong/medicalrecordflow/internal/statement"
	"github.com/Lllllllleong/medicalrecordflow/internal/store"
)

const defaultUploadWorkers = 4

// Input is everything one run needs. ManualRanges is the operator-supplied
// semicolon expression assigned positionally to statements the parser could
// not resolve; empty means no manual resolution was provided.
type Input struct {
	RunID         string
	DocumentName  string
	PatientName   string
	DocumentBytes []byte
	PDFBytes      []byte
	ManualRanges  string
}

// Runner executes pipeline runs. Safe for concurrent use; each Run owns its
// temp workspace and state.
type Runner struct {
	artifacts     store.ArtifactStore
	state         StateStore
	log           *slog.Logger
	uploadWorkers int
}

// Options tunes the runner. Zero values fall back to defaults.
type Options struct {
	UploadWorkers int
}

func NewRunner(artifacts store.ArtifactStore, state StateStore, log *slog.Logger, opts Options) *Runner {
	workers := opts.UploadWorkers
	if workers <= 0 {
		workers = defaultUploadWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		artifacts:     artifacts,
		state:         state,
		log:           log,
		uploadWorkers: workers,
	}
}

// Run drives one document through all phases. Progress events are sent on
// progress if non-nil; the caller must drain the channel. The returned result
// is populated even on a fatal error, with whatever completed before the
// failure.
func (r *Runner) Run(ctx context.Context, in Input, progress chan<- models.ProgressEvent) (*models.PipelineResult, error) {
	run := r.initRun(ctx, in)
	log := r.log.With("runID", run.ID, "document", run.DocumentName)
	em := &emitter{ch: progress}

	workDir, err := os.MkdirTemp("", "recordflow-"+run.ID+"-*")
	if err != nil {
		return r.fail(ctx, run, em, log, fmt.Errorf("failed to create run workspace: %w", err))
	}
	defer os.RemoveAll(workDir)

	log.Info("Pipeline run started.")
	em.emit(ctx, models.PhaseInit, 0, 0, "run initialized")

	// EXTRACTING
	if err := r.advance(ctx, run, em, log, models.PhaseExtracting); err != nil {
		return r.fail(ctx, run, em, log, err)
	}
	doc, err := docx.Open(in.DocumentBytes)
	if err != nil {
		return r.fail(ctx, run, em, log, fmt.Errorf("source document unreadable: %w", err))
	}
	paragraphs := doc.Paragraphs()
	run.Statements = statement.Parse(paragraphs)
	if run.PatientName == "" {
		if name, ok := statement.PatientName(paragraphs); ok {
			run.PatientName = name
		}
	}
	resolved := 0
	for i := range run.Statements {
		if run.Statements[i].Resolved() {
			resolved++
		}
	}
	log.Info("Statement extraction complete.",
		"statements", len(run.Statements),
		"resolved", resolved,
		"patient", run.PatientName,
	)
	em.emit(ctx, models.PhaseExtracting, 1, 1, fmt.Sprintf(
		"%d statements found, %d with page ranges, %d need manual entry",
		len(run.Statements), resolved, len(run.Statements)-resolved))

	// SPLITTING
	if err := r.advance(ctx, run, em, log, models.PhaseSplitting); err != nil {
		return r.fail(ctx, run, em, log, err)
	}
	splitter, err := split.New(in.PDFBytes, workDir)
	if err != nil {
		return r.fail(ctx, run, em, log, err)
	}
	r.assignManualRanges(run, in.ManualRanges, splitter.PageCount(), log)
	stmtFingerprint := r.splitStatements(ctx, run, splitter, em, log)

	// UPLOADING
	if err := r.advance(ctx, run, em, log, models.PhaseUploading); err != nil {
		return r.fail(ctx, run, em, log, err)
	}
	if err := r.uploadArtifacts(ctx, run, em, log); err != nil {
		return r.fail(ctx, run, em, log, err)
	}

	// LINKING
	if err := r.advance(ctx, run, em, log, models.PhaseLinking); err != nil {
		return r.fail(ctx, run, em, log, err)
	}
	linked := r.linkStatements(ctx, run, doc, stmtFingerprint, em, log)

	// FINALIZING
	if err := r.advance(ctx, run, em, log, models.PhaseFinalizing); err != nil {
		return r.fail(ctx, run, em, log, err)
	}
	final, err := doc.Bytes()
	if err != nil {
		return r.fail(ctx, run, em, log, fmt.Errorf("failed to rebuild document: %w", err))
	}

	summary := r.buildSummary(run, linked, "DONE", "")
	if err := r.state.SaveSummary(ctx, summary); err != nil {
		log.Warn("Failed to persist run summary.", "error", err)
	}
	run.Phase = models.PhaseDone
	r.saveState(ctx, run, log)

	em.emit(ctx, models.PhaseDone, 1, 1, fmt.Sprintf(
		"run complete: %d of %d statements linked", linked, len(run.Statements)))
	log.Info("Pipeline run complete.",
		"statements", len(run.Statements),
		"linked", linked,
		"unlinked", len(run.Unlinked),
		"failedItems", len(run.FailedItems),
	)

	result := r.buildResult(run, linked, summary)
	result.FinalDocument = final
	return result, nil
}

// initRun creates a fresh run, or resumes a prior snapshot so uploads with
// known fingerprints are not repeated.
func (r *Runner) initRun(ctx context.Context, in Input) *models.PipelineRun {
	run := &models.PipelineRun{
		ID:           in.RunID,
		Phase:        models.PhaseInit,
		DocumentName: in.DocumentName,
		PatientName:  in.PatientName,
		Artifacts:    make(map[string]models.SplitArtifact),
		Uploaded:     make(map[string]models.UploadedArtifact),
		StartedAt:    time.Now().UTC(),
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
		return run
	}

	prior, ok, err := r.state.LoadRun(ctx, run.ID)
	if err != nil {
		r.log.Warn("Failed to load prior run state, starting fresh.", "runID", run.ID, "error", err)
		return run
	}
	if ok {
		// Locators survive; parse and split results are re-derived from the
		// inputs because the temp workspace is gone.
		for fp, uploaded := range prior.Uploaded {
			run.Uploaded[fp] = uploaded
		}
		if run.PatientName == "" {
			run.PatientName = prior.PatientName
		}
		run.StartedAt = prior.StartedAt
		r.log.Info("Resuming prior run.", "runID", run.ID, "uploadedArtifacts", len(run.Uploaded))
	}
	return run
}

// advance moves the run into the next phase, persisting state and honoring
// cancellation at the boundary.
func (r *Runner) advance(ctx context.Context, run *models.PipelineRun, em *emitter, log *slog.Logger, phase models.Phase) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before %s: %w", phase, err)
	}
	run.Phase = phase
	r.saveState(ctx, run, log)
	em.emit(ctx, phase, 0, 0, string(phase))
	return nil
}

// assignManualRanges parses the operator expression and assigns its ranges,
// in order, to the statements the parser left unresolved. Invalid tokens fail
// only the statement they would have resolved.
func (r *Runner) assignManualRanges(run *models.PipelineRun, spec string, totalPages int, log *slog.Logger) {
	if spec == "" {
		return
	}
	tokens := pagerange.ParseManual(spec, totalPages)

	next := 0
	for i := range run.Statements {
		if run.Statements[i].Resolved() {
			continue
		}
		if next >= len(tokens) {
			break
		}
		tok := tokens[next]
		next++

		if !tok.Valid() {
			run.FailedItems = append(run.FailedItems, models.FailedItem{
				StatementIndex: i,
				Range:          tok.Token,
				Phase:          models.PhaseSplitting,
				Reason:         "manual range rejected: " + tok.Err.Error(),
			})
			continue
		}
		pr := tok.Range
		run.Statements[i].PageRange = &pr
	}

	if next < len(tokens) {
		log.Warn("Manual range expression has more tokens than unresolved statements.",
			"extra", len(tokens)-next)
	}
}

// splitStatements produces one artifact per distinct valid range and returns
// the fingerprint each statement's range resolved to ("" when excluded).
func (r *Runner) splitStatements(ctx context.Context, run *models.PipelineRun, splitter *split.Splitter, em *emitter, log *slog.Logger) []string {
	stmtFingerprint := make([]string, len(run.Statements))
	total := len(run.Statements)

	for i := range run.Statements {
		st := &run.Statements[i]
		if !st.Resolved() {
			run.FailedItems = append(run.FailedItems, models.FailedItem{
				StatementIndex: i,
				Phase:          models.PhaseSplitting,
				Reason:         "no page range resolved",
			})
			em.emit(ctx, models.PhaseSplitting, i+1, total, "statement skipped: no page range")
			continue
		}

		if err := pagerange.Validate(*st.PageRange, splitter.PageCount()); err != nil {
			run.FailedItems = append(run.FailedItems, models.FailedItem{
				StatementIndex: i,
				Range:          st.PageRange.String(),
				Phase:          models.PhaseSplitting,
				Reason:         err.Error(),
			})
			log.Warn("Page range rejected.", "statement", i, "range", st.PageRange.String(), "error", err)
			em.emit(ctx, models.PhaseSplitting, i+1, total, "range rejected: "+st.PageRange.String())
			continue
		}

		artifact, err := splitter.Split(*st.PageRange)
		if err != nil {
			run.FailedItems = append(run.FailedItems, models.FailedItem{
				StatementIndex: i,
				Range:          st.PageRange.String(),
				Phase:          models.PhaseSplitting,
				Reason:         err.Error(),
			})
			log.Warn("Split failed.", "statement", i, "range", st.PageRange.String(), "error", err)
			em.emit(ctx, models.PhaseSplitting, i+1, total, "split failed: "+st.PageRange.String())
			continue
		}

		run.Artifacts[artifact.Range.String()] = *artifact
		stmtFingerprint[i] = artifact.Fingerprint
		em.emit(ctx, models.PhaseSplitting, i+1, total, "split "+st.PageRange.String())
	}

	log.Info("Split phase complete.", "artifacts", len(splitter.Artifacts()), "statements", total)
	return stmtFingerprint
}

// uploadArtifacts uploads every distinct artifact with a bounded worker pool.
// A fingerprint already known remotely, or from a resumed run, is reused
// without a second upload. Per-artifact failures are recorded and the run
// continues; if every upload fails the backend is treated as unreachable and
// the run aborts.
func (r *Runner) uploadArtifacts(ctx context.Context, run *models.PipelineRun, em *emitter, log *slog.Logger) error {
	type job struct {
		artifact models.SplitArtifact
		date     time.Time
	}

	// One job per distinct fingerprint; the upload date comes from the first
	// statement that references the artifact.
	jobs := make([]job, 0, len(run.Artifacts))
	seen := make(map[string]bool)
	for i := range run.Statements {
		st := &run.Statements[i]
		if !st.Resolved() {
			continue
		}
		artifact, ok := run.Artifacts[st.PageRange.String()]
		if !ok || seen[artifact.Fingerprint] {
			continue
		}
		seen[artifact.Fingerprint] = true
		if _, done := run.Uploaded[artifact.Fingerprint]; done {
			continue
		}
		jobs = append(jobs, job{artifact: artifact, date: st.Date})
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].artifact.Range.Start < jobs[j].artifact.Range.Start
	})

	total := len(jobs)
	if total == 0 {
		em.emit(ctx, models.PhaseUploading, 1, 1, "no artifacts to upload")
		return nil
	}

	var mu sync.Mutex
	done, failures := 0, 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.uploadWorkers)
	for _, j := range jobs {
		j := j
		group.Go(func() error {
			uploaded, err := r.uploadOne(groupCtx, run, j.artifact, j.date)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				failures++
				run.FailedItems = append(run.FailedItems, models.FailedItem{
					StatementIndex: -1,
					Range:          j.artifact.Range.String(),
					Phase:          models.PhaseUploading,
					Reason:         err.Error(),
				})
				log.Warn("Artifact upload failed.", "range", j.artifact.Range.String(), "error", err)
				em.emit(groupCtx, models.PhaseUploading, done, total, "upload failed: "+j.artifact.Range.String())
				return nil
			}
			run.Uploaded[j.artifact.Fingerprint] = uploaded
			em.emit(groupCtx, models.PhaseUploading, done, total, "uploaded "+j.artifact.Range.String())
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("upload phase aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled during upload: %w", err)
	}
	if failures == total {
		return fmt.Errorf("storage backend unreachable: all %d uploads failed", total)
	}

	log.Info("Upload phase complete.", "uploaded", total-failures, "failed", failures)
	return nil
}

// uploadOne deduplicates by fingerprint against the remote store, then
// uploads into the statement's deterministic folder hierarchy.
func (r *Runner) uploadOne(ctx context.Context, run *models.PipelineRun, artifact models.SplitArtifact, date time.Time) (models.UploadedArtifact, error) {
	if existing, ok, err := r.artifacts.FindByFingerprint(ctx, artifact.Fingerprint); err == nil && ok {
		return existing, nil
	}

	path := store.FolderPath(date, run.PatientName)
	folderID, err := r.artifacts.EnsureFolder(ctx, path)
	if err != nil {
		return models.UploadedArtifact{}, fmt.Errorf("failed to ensure folder: %w", err)
	}

	name := artifact.Range.String() + ".pdf"
	return r.artifacts.Upload(ctx, artifact.LocalPath, artifact.Fingerprint, folderID, name)
}

// linkStatements pairs every statement that has an uploaded artifact with its
// locator and applies the hyperlinks. Statements excluded earlier are reported
// unlinked with the failure reason recorded for them.
func (r *Runner) linkStatements(ctx context.Context, run *models.PipelineRun, doc *docx.Document, stmtFingerprint []string, em *emitter, log *slog.Logger) int {
	reasons := make(map[int]string)
	for _, item := range run.FailedItems {
		if item.StatementIndex >= 0 {
			reasons[item.StatementIndex] = item.Reason
		}
	}

	var pairs []reconcile.Pair
	for i := range run.Statements {
		fp := stmtFingerprint[i]
		if fp == "" {
			reason, ok := reasons[i]
			if !ok {
				reason = "no artifact produced"
			}
			run.Unlinked = append(run.Unlinked, models.UnlinkedStatement{
				StatementIndex: i,
				Range:          rangeLabel(&run.Statements[i]),
				Reason:         reason,
			})
			continue
		}
		uploaded, ok := run.Uploaded[fp]
		if !ok {
			run.Unlinked = append(run.Unlinked, models.UnlinkedStatement{
				StatementIndex: i,
				Range:          rangeLabel(&run.Statements[i]),
				Reason:         "artifact upload failed",
			})
			continue
		}
		pairs = append(pairs, reconcile.Pair{
			StatementIndex: i,
			Statement:      run.Statements[i],
			Artifact:       uploaded,
		})
	}

	em.emit(ctx, models.PhaseLinking, 0, len(pairs), fmt.Sprintf("linking %d statements", len(pairs)))
	report := reconcile.Apply(doc, pairs, log)
	run.Unlinked = append(run.Unlinked, report.Unlinked...)
	em.emit(ctx, models.PhaseLinking, len(pairs), len(pairs), fmt.Sprintf(
		"%d linked, %d unlinked", len(report.Linked), len(run.Unlinked)))
	return len(report.Linked)
}

// fail terminates the run: state goes to FAILED, a summary with the error is
// persisted, and the partial result is returned alongside the error.
func (r *Runner) fail(ctx context.Context, run *models.PipelineRun, em *emitter, log *slog.Logger, cause error) (*models.PipelineResult, error) {
	log.Error("Pipeline run failed.", "phase", run.Phase, "error", cause)

	run.Phase = models.PhaseFailed
	summary := r.buildSummary(run, 0, "FAILED", cause.Error())
	// Persistence runs on a fresh context so a cancelled run still records
	// its failure.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.state.SaveSummary(saveCtx, summary); err != nil {
		log.Warn("Failed to persist failure summary.", "error", err)
	}
	r.saveState(saveCtx, run, log)

	em.emit(ctx, models.PhaseFailed, 0, 0, cause.Error())
	return r.buildResult(run, 0, summary), cause
}

func (r *Runner) saveState(ctx context.Context, run *models.PipelineRun, log *slog.Logger) {
	if err := r.state.SaveRun(ctx, run); err != nil {
		log.Warn("Failed to persist run state.", "phase", run.Phase, "error", err)
	}
}

func (r *Runner) buildSummary(run *models.PipelineRun, linked int, status, errMsg string) models.RunSummary {
	finished := time.Now().UTC()
	total := len(run.Statements)
	rate := 0.0
	if total > 0 {
		rate = float64(linked) / float64(total) * 100
	}
	return models.RunSummary{
		RunID:              run.ID,
		Filename:           run.DocumentName,
		PatientName:        run.PatientName,
		Status:             status,
		TotalStatements:    total,
		LinkedStatements:   linked,
		UnlinkedStatements: len(run.Unlinked),
		SuccessRate:        rate,
		DurationMillis:     finished.Sub(run.StartedAt).Milliseconds(),
		StartedAt:          run.StartedAt,
		FinishedAt:         finished,
		ErrorMessage:       errMsg,
	}
}

func (r *Runner) buildResult(run *models.PipelineRun, linked int, summary models.RunSummary) *models.PipelineResult {
	return &models.PipelineResult{
		RunID:              run.ID,
		Phase:              run.Phase,
		Statements:         run.Statements,
		LinkedStatements:   linked,
		UnlinkedStatements: run.Unlinked,
		FailedItems:        run.FailedItems,
		Summary:            summary,
	}
}

func rangeLabel(s *models.Statement) string {
	if s.PageRange == nil {
		return ""
	}
	return s.PageRange.String()
}
