package pipeline

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// FirestoreStateStore persists run state and history in Firestore. Run
// snapshots live in runCollection keyed by run ID; history entries live in
// historyCollection and are written once per run.
type FirestoreStateStore struct {
	client            *firestore.Client
	runCollection     string
	historyCollection string
}

func NewFirestoreStateStore(client *firestore.Client, runCollection, historyCollection string) *FirestoreStateStore {
	return &FirestoreStateStore{
		client:            client,
		runCollection:     runCollection,
		historyCollection: historyCollection,
	}
}

func (f *FirestoreStateStore) SaveRun(ctx context.Context, run *models.PipelineRun) error {
	_, err := f.client.Collection(f.runCollection).Doc(run.ID).Set(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (f *FirestoreStateStore) LoadRun(ctx context.Context, id string) (*models.PipelineRun, bool, error) {
	iter := f.client.Collection(f.runCollection).Where("id", "==", id).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	var run models.PipelineRun
	if err := doc.DataTo(&run); err != nil {
		return nil, false, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, true, nil
}

func (f *FirestoreStateStore) SaveSummary(ctx context.Context, summary models.RunSummary) error {
	_, err := f.client.Collection(f.historyCollection).Doc(summary.RunID).Set(ctx, summary)
	if err != nil {
		return fmt.Errorf("failed to save run summary %s: %w", summary.RunID, err)
	}
	return nil
}
