package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveStoreConfig configures the Google Drive artifact store.
type DriveStoreConfig struct {
	RootFolderID          string
	FolderCacheCollection string
	ArtifactCollection    string
}

// DriveStore implements ArtifactStore on Google Drive. Folder IDs are cached
// in Firestore so repeated runs do not re-walk the hierarchy, and every upload
// records its SHA-256 both in the file's appProperties and in a Firestore
// index keyed by fingerprint.
type DriveStore struct {
	service   *drive.Service
	firestore *firestore.Client
	config    DriveStoreConfig
}

type folderCacheEntry struct {
	FolderPath    string `firestore:"folderPath"`
	DriveFolderID string `firestore:"driveFolderId"`
}

// NewDriveStore builds a DriveStore with a fresh Drive service.
func NewDriveStore(ctx context.Context, fsClient *firestore.Client, config DriveStoreConfig) (*DriveStore, error) {
	if config.RootFolderID == "" {
		return nil, fmt.Errorf("drive root folder ID must be set")
	}

	service, err := drive.NewService(ctx, option.WithScopes(drive.DriveScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return &DriveStore{service: service, firestore: fsClient, config: config}, nil
}

// EnsureFolder resolves the hierarchy under the root folder, creating missing
// levels, and caches the resolved ID in Firestore.
func (d *DriveStore) EnsureFolder(ctx context.Context, path []string) (string, error) {
	key := strings.Join(path, "/")

	if id, ok, err := d.cachedFolderID(ctx, key); err != nil {
		slog.Warn("Folder cache lookup failed, resolving via Drive.", "path", key, "error", err)
	} else if ok {
		return id, nil
	}

	parent := d.config.RootFolderID
	for _, name := range path {
		id, err := d.childFolder(ctx, parent, name)
		if err != nil {
			return "", fmt.Errorf("failed to resolve folder %q under %s: %w", name, parent, err)
		}
		parent = id
	}

	if _, _, err := d.firestore.Collection(d.config.FolderCacheCollection).Add(ctx, folderCacheEntry{
		FolderPath:    key,
		DriveFolderID: parent,
	}); err != nil {
		slog.Warn("Failed to cache folder ID.", "path", key, "error", err)
	}
	return parent, nil
}

func (d *DriveStore) cachedFolderID(ctx context.Context, key string) (string, bool, error) {
	it := d.firestore.Collection(d.config.FolderCacheCollection).
		Where("folderPath", "==", key).Limit(1).Documents(ctx)
	doc, err := it.Next()
	if err == iterator.Done {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var entry folderCacheEntry
	if err := doc.DataTo(&entry); err != nil {
		return "", false, err
	}
	return entry.DriveFolderID, true, nil
}

func (d *DriveStore) childFolder(ctx context.Context, parent, name string) (string, error) {
	query := fmt.Sprintf(
		"name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), parent, folderMimeType,
	)
	list, err := d.service.Files.List().Context(ctx).Q(query).
		Fields("files(id)").PageSize(1).
		SupportsAllDrives(true).IncludeItemsFromAllDrives(true).Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	created, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parent},
	}).Context(ctx).Fields("id").SupportsAllDrives(true).Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

// Upload stores the local file in folderID and returns its webview link as
// the locator. Transient failures are retried with exponential backoff.
func (d *DriveStore) Upload(ctx context.Context, localPath, fingerprint, folderID, name string) (models.UploadedArtifact, error) {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		artifact, err := d.uploadOnce(ctx, localPath, fingerprint, folderID, name)
		if err == nil {
			d.indexArtifact(ctx, artifact)
			return artifact, nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"name", name,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "name", name, "error", ctx.Err())
			return models.UploadedArtifact{}, ctx.Err()
		}
	}
	return models.UploadedArtifact{}, fmt.Errorf("upload for %s failed after all retries: %w", name, lastErr)
}

func (d *DriveStore) uploadOnce(ctx context.Context, localPath, fingerprint, folderID, name string) (models.UploadedArtifact, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return models.UploadedArtifact{}, fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer file.Close()

	uploadCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()

	created, err := d.service.Files.Create(&drive.File{
		Name:          name,
		Parents:       []string{folderID},
		AppProperties: map[string]string{"sha256": fingerprint},
	}).Context(uploadCtx).
		Media(file, googleapi.ContentType("application/pdf")).
		Fields("id, webViewLink").
		SupportsAllDrives(true).Do()
	if err != nil {
		return models.UploadedArtifact{}, fmt.Errorf("drive create failed: %w", err)
	}

	return models.UploadedArtifact{
		Locator:     created.WebViewLink,
		Fingerprint: fingerprint,
	}, nil
}

func (d *DriveStore) indexArtifact(ctx context.Context, artifact models.UploadedArtifact) {
	_, err := d.firestore.Collection(d.config.ArtifactCollection).
		Doc(artifact.Fingerprint).Set(ctx, artifact)
	if err != nil {
		slog.Warn("Failed to index uploaded artifact.", "fingerprint", artifact.Fingerprint, "error", err)
	}
}

// FindByFingerprint consults the Firestore index first and falls back to a
// Drive appProperties query, so dedup survives a lost index.
func (d *DriveStore) FindByFingerprint(ctx context.Context, fingerprint string) (models.UploadedArtifact, bool, error) {
	doc, err := d.firestore.Collection(d.config.ArtifactCollection).Doc(fingerprint).Get(ctx)
	if err == nil {
		var artifact models.UploadedArtifact
		if err := doc.DataTo(&artifact); err == nil {
			return artifact, true, nil
		}
	}

	query := fmt.Sprintf(
		"appProperties has { key='sha256' and value='%s' } and trashed = false",
		escapeQuery(fingerprint),
	)
	list, err := d.service.Files.List().Context(ctx).Q(query).
		Fields("files(id, webViewLink)").PageSize(1).
		SupportsAllDrives(true).IncludeItemsFromAllDrives(true).Do()
	if err != nil {
		return models.UploadedArtifact{}, false, fmt.Errorf("fingerprint lookup failed: %w", err)
	}
	if len(list.Files) == 0 {
		return models.UploadedArtifact{}, false, nil
	}

	artifact := models.UploadedArtifact{
		Locator:     list.Files[0].WebViewLink,
		Fingerprint: fingerprint,
	}
	d.indexArtifact(ctx, artifact)
	return artifact, true, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
