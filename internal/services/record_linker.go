// Package services wires the pipeline to its Cloud Function trigger: staged
// sessions arrive via GCS events, the linked document lands in the output
// bucket, and the downstream workflow receives the terminal payload.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/medicalrecordflow/internal/config"
	"github.com/Lllllllleong/medicalrecordflow/internal/dispatch"
	"github.com/Lllllllleong/medicalrecordflow/internal/gcp"
	"github.com/Lllllllleong/medicalrecordflow/internal/models"
	"github.com/Lllllllleong/medicalrecordflow/internal/pipeline"
	"github.com/Lllllllleong/medicalrecordflow/internal/store"
)

// Objects staged under one session prefix in the staging bucket.
const (
	documentObject = "source.docx"
	recordObject   = "source.pdf"
	rangesObject   = "ranges.txt"
	requestObject  = "request.json"
)

// GCSEvent is the finalize notification payload for a staged object.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// RecordLinkerFunction is the long-lived function instance. Clients are built
// once at cold start and shared across invocations.
type RecordLinkerFunction struct {
	storageClient *storage.Client
	dispatcher    *dispatch.WorkflowDispatcher
	runner        *pipeline.Runner
	config        config.Config
	log           *slog.Logger
}

func NewRecordLinker(ctx context.Context) (*RecordLinkerFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, _ := config.SetupLogger(cfg.LogFile, cfg.Level())
	slog.SetDefault(logger)

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	dispatcher, err := dispatch.NewWorkflowDispatcher(ctx, cfg.ProjectID, cfg.WorkflowID, cfg.WorkflowLocation)
	if err != nil {
		return nil, err
	}

	artifacts, err := store.NewDriveStore(ctx, firestoreClient, store.DriveStoreConfig{
		RootFolderID:          cfg.DriveRootFolderID,
		FolderCacheCollection: cfg.FolderCacheCollection,
		ArtifactCollection:    cfg.ArtifactCollection,
	})
	if err != nil {
		return nil, err
	}
	state := pipeline.NewFirestoreStateStore(firestoreClient, cfg.RunCollection, cfg.HistoryCollection)
	runner := pipeline.NewRunner(artifacts, state, logger, pipeline.Options{
		UploadWorkers: cfg.UploadWorkers,
	})

	f := &RecordLinkerFunction{
		storageClient: storageClient,
		dispatcher:    dispatcher,
		runner:        runner,
		config:        cfg,
		log:           logger,
	}
	logger.Info("Record linker initialized.", "stagingBucket", cfg.StagingBucket, "outputBucket", cfg.OutputBucket)
	return f, nil
}

// Process handles one staged session. Only the request.json finalize event
// starts a run; the other staged objects are ignored so partially staged
// sessions never trigger early.
func (f *RecordLinkerFunction) Process(ctx context.Context, e GCSEvent) error {
	if path.Base(e.Name) != requestObject {
		f.log.Debug("Ignoring non-request object.", "gcsObject", e.Name)
		return nil
	}

	req, err := f.readRequest(ctx, e)
	if err != nil {
		f.log.Error("Failed to read session request.", "gcsBucket", e.Bucket, "gcsObject", e.Name, "error", err)
		return err
	}
	logCtx := f.log.With("session", req.SessionPrefix, "document", req.DocumentName)
	logCtx.Info("Processing staged session.")

	input, err := f.stageInput(ctx, req)
	if err != nil {
		logCtx.Error("Failed to stage session inputs.", "error", err)
		return err
	}

	progress := make(chan models.ProgressEvent, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range progress {
			logCtx.Info("Progress.", "phase", ev.Phase, "percent", ev.Percent, "message", ev.Message)
		}
	}()

	result, runErr := f.runner.Run(ctx, input, progress)
	close(progress)
	<-drained

	response := models.LinkResponse{
		RunID:              result.RunID,
		Status:             string(result.Phase),
		TotalStatements:    len(result.Statements),
		LinkedStatements:   result.LinkedStatements,
		UnlinkedStatements: len(result.UnlinkedStatements),
	}
	if runErr != nil {
		response.ErrorMessage = runErr.Error()
	}

	if result.FinalDocument != nil {
		outputObject := outputName(req.DocumentName)
		bucket := f.storageClient.Bucket(f.config.OutputBucket)
		if err := gcp.SaveToGCSAtomically(ctx, bucket, outputObject, result.FinalDocument); err != nil {
			logCtx.Error("Failed to save linked document.", "error", err)
			return err
		}
		response.OutputGCSUri = fmt.Sprintf("gs://%s/%s", f.config.OutputBucket, outputObject)
		logCtx.Info("Linked document saved.", "output", response.OutputGCSUri)
	}

	if err := f.dispatcher.Dispatch(ctx, response); err != nil {
		logCtx.Error("Failed to hand off to workflow.", "error", err)
		return err
	}
	logCtx.Info("Hand-off to workflow complete.", "status", response.Status)
	return runErr
}

// readRequest loads and validates the session's request.json.
func (f *RecordLinkerFunction) readRequest(ctx context.Context, e GCSEvent) (models.LinkRequest, error) {
	raw, err := gcp.ReadObject(ctx, f.storageClient, e.Bucket, e.Name)
	if err != nil {
		return models.LinkRequest{}, err
	}

	req, err := models.ParseLinkRequest(raw)
	if err != nil {
		return models.LinkRequest{}, err
	}
	if req.SessionPrefix == "" {
		req.SessionPrefix = path.Dir(e.Name)
	}
	if req.DocumentName == "" {
		req.DocumentName = path.Base(req.SessionPrefix)
	}
	return req, nil
}

// stageInput downloads the session's staged objects. ranges.txt is optional;
// a ManualRanges value in the request wins over the staged file.
func (f *RecordLinkerFunction) stageInput(ctx context.Context, req models.LinkRequest) (pipeline.Input, error) {
	bucket := f.config.StagingBucket

	docBytes, err := gcp.ReadObject(ctx, f.storageClient, bucket, req.SessionPrefix+"/"+documentObject)
	if err != nil {
		return pipeline.Input{}, err
	}
	pdfBytes, err := gcp.ReadObject(ctx, f.storageClient, bucket, req.SessionPrefix+"/"+recordObject)
	if err != nil {
		return pipeline.Input{}, err
	}

	manualRanges := req.ManualRanges
	if manualRanges == "" {
		raw, err := gcp.ReadObject(ctx, f.storageClient, bucket, req.SessionPrefix+"/"+rangesObject)
		switch {
		case err == nil:
			manualRanges = strings.TrimSpace(string(raw))
		case errors.Is(err, storage.ErrObjectNotExist):
			// Optional object.
		default:
			return pipeline.Input{}, err
		}
	}

	return pipeline.Input{
		RunID:         sessionRunID(req.SessionPrefix),
		DocumentName:  req.DocumentName,
		PatientName:   req.PatientName,
		DocumentBytes: docBytes,
		PDFBytes:      pdfBytes,
		ManualRanges:  manualRanges,
	}, nil
}

// sessionRunID derives a stable run ID from the session prefix so a retried
// event resumes the same run instead of starting a new one.
func sessionRunID(sessionPrefix string) string {
	return strings.ReplaceAll(strings.Trim(sessionPrefix, "/"), "/", "-")
}

func outputName(documentName string) string {
	base := strings.TrimSuffix(documentName, path.Ext(documentName))
	return base + "_linked.docx"
}
