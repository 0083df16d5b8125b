// Package dispatch hands finished runs off to the downstream Cloud Workflow.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// WorkflowDispatcher triggers one workflow execution per completed run.
type WorkflowDispatcher struct {
	client           *executions.Client
	projectID        string
	workflowID       string
	workflowLocation string
}

func NewWorkflowDispatcher(ctx context.Context, projectID, workflowID, workflowLocation string) (*WorkflowDispatcher, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowDispatcher{
		client:           client,
		projectID:        projectID,
		workflowID:       workflowID,
		workflowLocation: workflowLocation,
	}, nil
}

// Dispatch starts the downstream workflow with the run's terminal payload as
// its argument.
func (w *WorkflowDispatcher) Dispatch(ctx context.Context, response models.LinkResponse) error {
	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}

	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s",
			w.projectID, w.workflowLocation, w.workflowID),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	if _, err := w.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (w *WorkflowDispatcher) Close() error {
	return w.client.Close()
}
