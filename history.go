package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// HistoryRecord summarises one pass
type HistoryRecord struct {
	RunID      string    `json:"run_id"`
	Kind       Kind      `json:"kind"`
	Mode       string    `json:"mode"`
	Model      string    `json:"model"`
	CheckModel string    `json:"check_model"`
	Processed  int       `json:"processed"`
	Validated  int       `json:"validated"`
	Rejected   int       `json:"rejected"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// History is an append-only JSON-lines log of passes
type History struct {
	path string
}

// NewHistory creates a history stored at path
func NewHistory(path string) *History {
	return &History{path: path}
}

// Append adds one record
func (h *History) Append(rec HistoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding history record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// Records returns every readable record, oldest first. Unparseable lines are skipped.
func (h *History) Records() ([]HistoryRecord, error) {
	f, err := os.Open(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer f.Close()

	var records []HistoryRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec HistoryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return records, nil
}
