package checkpoint

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"categorizer/internal/domain"
)

// Writer persists result sets. Each write replaces the destination file
// atomically: a temp file in the same directory is synced and renamed over
// the target, so readers never see a partial file.
type Writer struct {
	permFile os.FileMode
	permDir  os.FileMode
}

func NewWriter() *Writer {
	return &Writer{permFile: 0o644, permDir: 0o755}
}

// WriteResults rewrites path with the full result set.
func (w *Writer) WriteResults(path string, results []domain.CategorizedQuestion) error {
	if results == nil {
		results = []domain.CategorizedQuestion{}
	}
	return w.WriteJSON(path, results)
}

// WriteJSON encodes v as indented UTF-8 JSON without HTML escaping.
func (w *Writer) WriteJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, w.permDir); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permFile)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}

	bw := bufio.NewWriter(tmp)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// LoadResults reads a checkpoint or final output file.
func LoadResults(path string) ([]domain.CategorizedQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var results []domain.CategorizedQuestion
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parse results %s: %w", path, err)
	}
	if results == nil {
		results = []domain.CategorizedQuestion{}
	}
	return results, nil
}
