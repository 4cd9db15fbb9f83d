package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/lookerexp/internal/exposure"
)

// DefaultDir is where files are written when no directory is configured.
const DefaultDir = "yaml_files"

// Writer writes one YAML file per record into a directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer for dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{dir: dir, logger: logger}
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write renders every record and returns the written paths in record order.
// Files are replaced atomically so readers never observe partial documents.
func (w *Writer) Write(records []exposure.Record) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(records))
	for _, rec := range records {
		data, err := Marshal(rec)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(w.dir, FileName(rec))
		if err := writeFileAtomic(path, data); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		w.logger.Debug("wrote exposure", slog.String("path", path), slog.String("dashboard_id", rec.DashboardID.String()))
		paths = append(paths, path)
	}
	return paths, nil
}

// Prune removes previously generated files in the output directory that are
// not in keep. Only names containing "_looker_" with the YAML suffix are
// considered. It returns the removed paths.
func (w *Writer) Prune(keep []string) ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	kept := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		kept[filepath.Base(p)] = struct{}{}
	}

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, FileSuffix) || !strings.Contains(name, "_looker_") {
			continue
		}
		if _, ok := kept[name]; ok {
			continue
		}
		path := filepath.Join(w.dir, name)
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove stale %s: %w", path, err)
		}
		w.logger.Info("removed stale exposure", slog.String("path", path))
		removed = append(removed, path)
	}
	return removed, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".exposure-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
