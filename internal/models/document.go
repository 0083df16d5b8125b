package models

import "time"

// RunSummary is the persisted history record for one pipeline run in
// Firestore. It is written exactly once, at the FINALIZING phase, and never
// mutated afterward.
type RunSummary struct {
	RunID              string    `json:"runId" firestore:"runId"`
	Filename           string    `json:"filename" firestore:"filename"`
	PatientName        string    `json:"patientName" firestore:"patientName"`
	Status             string    `json:"status" firestore:"status"`
	TotalStatements    int       `json:"totalStatements" firestore:"totalStatements"`
	LinkedStatements   int       `json:"linkedStatements" firestore:"linkedStatements"`
	UnlinkedStatements int       `json:"unlinkedStatements" firestore:"unlinkedStatements"`
	SuccessRate        float64   `json:"successRate" firestore:"successRate"`
	DurationMillis     int64     `json:"durationMillis" firestore:"durationMillis"`
	StartedAt          time.Time `json:"startedAt" firestore:"startedAt"`
	FinishedAt         time.Time `json:"finishedAt" firestore:"finishedAt"`
	ErrorMessage       string    `json:"errorMessage,omitempty" firestore:"errorMessage,omitempty"`
}
