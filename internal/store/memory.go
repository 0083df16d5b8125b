package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Lllllllleong/medicalrecordflow/internal/models"
)

// MemoryStore is an in-process ArtifactStore used by tests and dry runs. It
// mirrors the dedup contract of the Drive store: one remote artifact per
// fingerprint, stable locators.
type MemoryStore struct {
	mu        sync.Mutex
	folders   map[string]string
	artifacts map[string]models.UploadedArtifact
	uploads   int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		folders:   make(map[string]string),
		artifacts: make(map[string]models.UploadedArtifact),
	}
}

// EnsureFolder resolves the joined path to a synthetic folder ID.
func (m *MemoryStore) EnsureFolder(_ context.Context, path []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.Join(path, "/")
	if id, ok := m.folders[key]; ok {
		return id, nil
	}
	id := fmt.Sprintf("folder-%d", len(m.folders)+1)
	m.folders[key] = id
	return id, nil
}

// Upload records the artifact and returns a locator derived from its
// fingerprint, so identical bytes always resolve to the same locator.
func (m *MemoryStore) Upload(_ context.Context, localPath, fingerprint, folderID, name string) (models.UploadedArtifact, error) {
	if _, err := os.Stat(localPath); err != nil {
		return models.UploadedArtifact{}, fmt.Errorf("local artifact missing: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploads++
	if existing, ok := m.artifacts[fingerprint]; ok {
		return existing, nil
	}

	folderPath := ""
	for path, id := range m.folders {
		if id == folderID {
			folderPath = path
			break
		}
	}

	a := models.UploadedArtifact{
		Locator:     "mem://" + fingerprint + "/" + name,
		Fingerprint: fingerprint,
		FolderPath:  folderPath,
	}
	m.artifacts[fingerprint] = a
	return a, nil
}

// FindByFingerprint returns a previously uploaded artifact with this content.
func (m *MemoryStore) FindByFingerprint(_ context.Context, fingerprint string) (models.UploadedArtifact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[fingerprint]
	return a, ok, nil
}

// UploadCount reports how many Upload calls were made, duplicates included.
func (m *MemoryStore) UploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// ArtifactCount reports how many distinct artifacts the store holds.
func (m *MemoryStore) ArtifactCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.artifacts)
}
