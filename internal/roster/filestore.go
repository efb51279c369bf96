package roster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"transit/internal/tabular"
)

// FileStore keeps one CSV file per role in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create roster dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path is the file backing role.
func (s *FileStore) Path(role Role) string {
	return filepath.Join(s.dir, role.Table()+".csv")
}

// Load reads role's table. A missing file is an empty roster.
func (s *FileStore) Load(_ context.Context, role Role) ([]Identity, error) {
	data, err := os.ReadFile(s.Path(role))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	t, err := tabular.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	return FromTable(role, t), nil
}

// Replace rewrites role's table through a temp file and rename, so readers
// see either the old or the new table, never a partial one.
func (s *FileStore) Replace(_ context.Context, role Role, idents []Identity) error {
	tmp, err := os.CreateTemp(s.dir, role.Table()+"-*.csv.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if err := tabular.WriteCSV(tmp, Columns, Records(idents)); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(role)); err != nil {
		return fmt.Errorf("replace %s: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	return nil
}
