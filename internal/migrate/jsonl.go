// Package migrate moves Items between the store and JSONL files, one record
// per line.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/duoapp/duo/internal/items"
	"github.com/duoapp/duo/internal/store"
)

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	FromJSONL string // Input JSONL file path
	DryRun    bool   // Parse and report without writing
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Read     int
	Imported int
	Skipped  int // blank names, which the add gate refuses
	Errors   []string
}

// ReadJSONL parses records from r. Ids in the input are ignored by Import;
// the store assigns new ones.
func ReadJSONL(r io.Reader) ([]store.Record, error) {
	var records []store.Record
	decoder := json.NewDecoder(r)
	lineNum := 0

	for {
		var rec store.Record
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", lineNum+1, err)
		}
		lineNum++
		records = append(records, rec)
	}

	return records, nil
}

// WriteJSONL writes one JSON object per record.
func WriteJSONL(w io.Writer, records []store.Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", rec.ID, err)
		}
	}
	return bw.Flush()
}

// Export writes the controller's list to path, atomically via a temp file.
func Export(ctrl *items.Controller, path string) (int, error) {
	records := ctrl.Items()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := WriteJSONL(f, records); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return len(records), nil
}

// Import adds every named record in the file through the controller, so
// subscribers see each add. A failed add is recorded and the import goes on.
func Import(ctx context.Context, ctrl *items.Controller, opts ImportOptions) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(opts.FromJSONL)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()

	records, err := ReadJSONL(f)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Read: len(records)}
	for _, rec := range records {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		ctrl.SetNewName(rec.Name)
		if !ctrl.CanAdd() {
			result.Skipped++
			continue
		}
		if opts.DryRun {
			result.Imported++
			continue
		}
		if err := ctrl.Add(ctx); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Imported++
	}
	ctrl.SetNewName("")

	return result, nil
}
