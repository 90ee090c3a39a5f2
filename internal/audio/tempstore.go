package audio

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openasr/parakeetd/internal/apierrors"
)

// TempStore owns a directory of request-scoped temporary files. Every
// path it hands out lives directly inside that directory, and Cleanup
// refuses to delete anything else.
type TempStore struct {
	dir    string
	logger *slog.Logger
}

// NewTempStore creates the managed directory if needed. An empty dir
// falls back to the system temp directory.
func NewTempStore(dir string, logger *slog.Logger) (*TempStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir %s: %w", dir, err)
	}
	return &TempStore{dir: dir, logger: logger}, nil
}

// Dir returns the managed directory.
func (s *TempStore) Dir() string { return s.dir }

// Save writes content to a uniquely named file inside the managed
// directory. Only the base name of desiredName survives; a random hex
// prefix prevents collisions between concurrent requests. The write is
// atomic: content lands in a scratch file first and is renamed into place.
func (s *TempStore) Save(content []byte, desiredName string) (string, error) {
	safeName := SanitizeFilename(desiredName)

	prefix := make([]byte, 16)
	if _, err := rand.Read(prefix); err != nil {
		return "", apierrors.Processing("failed to generate temp filename", err)
	}
	path := filepath.Join(s.dir, hex.EncodeToString(prefix)+"_"+safeName)

	scratch := path + ".partial"
	if err := os.WriteFile(scratch, content, 0o600); err != nil {
		return "", apierrors.Processing("failed to save uploaded file", err)
	}
	if err := os.Rename(scratch, path); err != nil {
		_ = os.Remove(scratch)
		return "", apierrors.Processing("failed to save uploaded file", err)
	}
	return path, nil
}

// Cleanup deletes a file previously produced for a request. It is
// best-effort and idempotent: a missing file is a no-op, a path outside
// the managed directory is ignored, and failures are logged rather than
// returned since cleanup runs on error paths where a second failure would
// mask the first.
func (s *TempStore) Cleanup(path string) {
	if path == "" {
		return
	}
	if filepath.Dir(path) != filepath.Clean(s.dir) {
		s.logger.Warn("refusing to delete file outside temp dir", "path", path)
		return
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to clean up temp file", "path", path, "error", err)
		}
		return
	}
	s.logger.Debug("cleaned up temp file", "path", path)
}
