package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/medicalrecordflow/internal/services"
)

var (
	recordLinkerInstance *services.RecordLinkerFunction
	once                 sync.Once
	initErr              error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("LinkRecords", linkRecords)
}

// main is required by the Go Functions Framework.
func main() {}

// linkRecords is the Cloud Function entry point for staged session events.
func linkRecords(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		recordLinkerInstance, initErr = services.NewRecordLinker(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return recordLinkerInstance.Process(ctx, gcsEvent)
}
