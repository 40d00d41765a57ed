package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"intraday-backtest/services/trade"
)

// FileStore keeps trades as one JSONL file per strategy and checkpoints as
// JSON documents written atomically via rename. Suited to the CSV data
// path; production runs use the ClickHouse store.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) tradesPath(strategy string) string {
	return filepath.Join(s.dir, strategy+"_trades.jsonl")
}

func (s *FileStore) checkpointPath(strategy string) string {
	return filepath.Join(s.dir, strategy+"_checkpoint.json")
}

// WriteTrades appends records; duplicates from reprocessed symbols are
// dropped on load by natural key.
func (s *FileStore) WriteTrades(_ context.Context, records []trade.Record) error {
	if len(records) == 0 {
		return nil
	}
	f, err := os.OpenFile(s.tradesPath(records[0].Strategy), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trades file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode trade %s: %w", r.Key(), err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush trades file: %w", err)
	}
	return f.Sync()
}

func (s *FileStore) LoadTrades(_ context.Context, strategy string) ([]trade.Record, error) {
	f, err := os.Open(s.tradesPath(strategy))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open trades file: %w", err)
	}
	defer f.Close()

	var records []trade.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r trade.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decode trade line: %w", err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return trade.Dedup(records), nil
}

func (s *FileStore) LoadCheckpoint(_ context.Context, strategy string) (*trade.Checkpoint, error) {
	raw, err := os.ReadFile(s.checkpointPath(strategy))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp trade.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// SaveCheckpoint writes the document to a temp file and renames it, so a
// crash mid-write never leaves a truncated checkpoint.
func (s *FileStore) SaveCheckpoint(_ context.Context, cp *trade.Checkpoint) error {
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	path := s.checkpointPath(cp.Strategy)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

var (
	_ TradeStore      = (*FileStore)(nil)
	_ CheckpointStore = (*FileStore)(nil)
)
