package imagestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store keeps uploaded check photos and provisioned reference photos on the
// local filesystem. Uploads get fresh collision-resistant names; reference
// images are read-only and keyed by username.
type Store struct {
	uploadDir    string
	referenceDir string
	references   map[string]string // username -> filename under referenceDir
}

// ErrReferenceMissing reports a registered reference image whose file is
// absent from disk. Callers decide the policy (the pipeline fails open).
var ErrReferenceMissing = errors.New("reference image file missing")

// New creates a store rooted at the given directories, creating them if needed.
func New(uploadDir, referenceDir string, references map[string]string) (*Store, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.MkdirAll(referenceDir, 0o755); err != nil {
		return nil, fmt.Errorf("create reference dir: %w", err)
	}
	if references == nil {
		references = map[string]string{}
	}
	return &Store{uploadDir: uploadDir, referenceDir: referenceDir, references: references}, nil
}

// Save writes image bytes under a fresh filename and returns the stored path.
// The name carries the student id and capture timestamp plus a random suffix
// so two submissions in the same second cannot collide.
func (s *Store) Save(studentID int64, captured time.Time, data []byte) (string, error) {
	name := fmt.Sprintf("uniform_%d_%s_%s.jpg",
		studentID,
		captured.Format("20060102_150405"),
		uuid.NewString()[:8],
	)
	path := filepath.Join(s.uploadDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

// HasReference reports whether a reference image is registered for the username.
func (s *Store) HasReference(username string) bool {
	_, ok := s.references[username]
	return ok
}

// Reference returns the stored reference image bytes for a username.
// It returns ErrReferenceMissing when the username is registered but the
// file is not on disk.
func (s *Store) Reference(username string) ([]byte, error) {
	name, ok := s.references[username]
	if !ok {
		return nil, fmt.Errorf("no reference registered for %q", username)
	}
	path := filepath.Join(s.referenceDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrReferenceMissing
		}
		return nil, fmt.Errorf("read reference image: %w", err)
	}
	return data, nil
}
