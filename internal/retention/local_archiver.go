package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/agentoven/aigateway/pkg/models"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// LocalFileArchiver writes expired records as JSONL files to a local directory.
//
// Directory structure:
//
//	{basePath}/executions/2026-02-20T15-04-05Z-1a2b3c4d.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
	now      func() time.Time
}

// NewLocalFileArchiver creates a file-based archiver. If basePath is empty,
// it defaults to "~/.aigateway/archive".
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = filepath.Join(os.TempDir(), "aigateway", "archive")
		} else {
			basePath = filepath.Join(home, ".aigateway", "archive")
		}
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress, now: time.Now}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

func (a *LocalFileArchiver) ArchiveExecutions(_ context.Context, records []models.ExecutionRecord) (string, error) {
	dir := filepath.Join(a.basePath, "executions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := a.now().UTC().Format("2006-01-02T15-04-05Z") + "-" + uuid.New().String()[:8] + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	if err := writeJSONL(f, records, a.compress); err != nil {
		f.Close()
		os.Remove(fpath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(fpath)
		return "", fmt.Errorf("close archive file: %w", err)
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(records)).
		Msg("Archived executions to local file")

	return fpath, nil
}

func writeJSONL(w io.Writer, records []models.ExecutionRecord, compress bool) error {
	var gw *gzip.Writer
	if compress {
		gw = gzip.NewWriter(w)
		w = gw
	}

	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode execution %s: %w", records[i].ID, err)
		}
	}

	if gw != nil {
		if err := gw.Close(); err != nil {
			return fmt.Errorf("flush archive: %w", err)
		}
	}
	return nil
}

func (a *LocalFileArchiver) HealthCheck(_ context.Context) error {
	// Verify we can write to the base path
	if err := os.MkdirAll(a.basePath, 0o755); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	testFile := filepath.Join(a.basePath, ".healthcheck")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	os.Remove(testFile)
	return nil
}
