package models

import (
	"encoding/json"
	"fmt"
)

// These structs define the JSON payloads exchanged between the record-linker
// Cloud Function and its collaborators (staging bucket events in, downstream
// workflow executions out).

// LinkRequest describes one staged processing session. The staging bucket
// holds source.docx, source.pdf and an optional ranges.txt under SessionPrefix.
type LinkRequest struct {
	SessionPrefix string `json:"sessionPrefix"`
	DocumentName  string `json:"documentName"`
	PatientName   string `json:"patientName,omitempty"`
	ManualRanges  string `json:"manualRanges,omitempty"`
}

// ParseLinkRequest decodes a staged request.json payload.
func ParseLinkRequest(raw []byte) (LinkRequest, error) {
	var req LinkRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return LinkRequest{}, fmt.Errorf("failed to parse link request: %w", err)
	}
	return req, nil
}

// LinkResponse is the terminal payload handed to the downstream workflow once
// a run finishes.
type LinkResponse struct {
	RunID              string `json:"runId"`
	Status             string `json:"status"`
	OutputGCSUri       string `json:"outputGcsUri,omitempty"`
	TotalStatements    int    `json:"totalStatements"`
	LinkedStatements   int    `json:"linkedStatements"`
	UnlinkedStatements int    `json:"unlinkedStatements"`
	ErrorMessage       string `json:"errorMessage,omitempty"`
}
