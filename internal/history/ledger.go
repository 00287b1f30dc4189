// Package history persists one row per monitoring run.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/arcticwatch/arcticwatch/internal/models"
)

// Row is the on-disk form of a run.
type Row struct {
	RunID       string `json:"run_id" parquet:"run_id"`
	StartedAtMs int64  `json:"started_at_ms" parquet:"started_at_ms"`
	DurationMs  int64  `json:"duration_ms" parquet:"duration_ms"`
	Outcome     string `json:"outcome" parquet:"outcome"`
	State       string `json:"state" parquet:"state"`
	Step        string `json:"step" parquet:"step"`
	Error       string `json:"error" parquet:"error"`
	Entry       string `json:"entry" parquet:"entry"`
	Caption     string `json:"caption" parquet:"caption"`
	CorpusSize  int64  `json:"corpus_size" parquet:"corpus_size"`
}

func rowFromSummary(run models.RunSummary) Row {
	return Row{
		RunID:       run.ID,
		StartedAtMs: run.StartedAt.UnixMilli(),
		DurationMs:  run.Duration().Milliseconds(),
		Outcome:     run.Outcome,
		State:       run.State,
		Step:        run.Step,
		Error:       run.Error,
		Entry:       run.Entry,
		Caption:     run.Caption,
		CorpusSize:  int64(run.CorpusSize),
	}
}

// Summary converts the row back to a RunSummary.
func (r Row) Summary() models.RunSummary {
	started := time.UnixMilli(r.StartedAtMs)
	return models.RunSummary{
		ID:         r.RunID,
		Outcome:    r.Outcome,
		State:      r.State,
		Step:       r.Step,
		Error:      r.Error,
		Entry:      r.Entry,
		Caption:    r.Caption,
		CorpusSize: int(r.CorpusSize),
		StartedAt:  started,
		FinishedAt: started.Add(time.Duration(r.DurationMs) * time.Millisecond),
	}
}

// Ledger is an append-only run log stored as Parquet (.parquet) or JSON
// lines (.jsonl).
type Ledger struct {
	path string
	mu   sync.Mutex
}

// NewLedger creates a ledger for path. The file is created on first Record.
func NewLedger(path string) (*Ledger, error) {
	switch format(path) {
	case ".parquet", ".jsonl":
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", filepath.Ext(path))
	}
	return &Ledger{path: path}, nil
}

func format(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		return ".jsonl"
	}
	return ext
}

func (l *Ledger) Path() string {
	return l.path
}

// Record appends a run.
func (l *Ledger) Record(run models.RunSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	row := rowFromSummary(run)
	if format(l.path) == ".jsonl" {
		return l.appendJSONL(row)
	}
	return l.appendParquet(row)
}

// Load returns all recorded runs in insertion order.
func (l *Ledger) Load() ([]models.RunSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		rows []Row
		err  error
	)
	if format(l.path) == ".jsonl" {
		rows, err = l.loadJSONL()
	} else {
		rows, err = l.loadParquet()
	}
	if err != nil {
		return nil, err
	}

	runs := make([]models.RunSummary, len(rows))
	for i, r := range rows {
		runs[i] = r.Summary()
	}
	return runs, nil
}

// Tail returns the last n runs, newest first. n <= 0 returns all of them.
func (l *Ledger) Tail(n int) ([]models.RunSummary, error) {
	runs, err := l.Load()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(runs) > n {
		runs = runs[len(runs)-n:]
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}

func (l *Ledger) appendJSONL(row Row) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal history row: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write history row: %w", err)
	}
	return nil
}

func (l *Ledger) loadJSONL() ([]Row, error) {
	file, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	var rows []Row
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row Row
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading history: %w", err)
	}
	return rows, nil
}

// Parquet files cannot be appended to in place, so the file is rewritten
// through a temporary file and renamed over the old one.
func (l *Ledger) appendParquet(row Row) error {
	rows, err := l.loadParquet()
	if err != nil {
		return err
	}
	rows = append(rows, row)

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".history-*.parquet")
	if err != nil {
		return fmt.Errorf("failed to create temporary history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := parquet.NewGenericWriter[Row](tmp)
	if _, err := writer.Write(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}

	slog.Debug("Recorded run", "path", l.path, "rows", len(rows))
	return nil
}

func (l *Ledger) loadParquet() ([]Row, error) {
	file, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var records []Row
	batch := make([]Row, 128)
	for {
		n, err := reader.Read(batch)
		records = append(records, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	return records, nil
}
