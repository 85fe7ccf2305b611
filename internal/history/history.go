// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history records generated playbooks. It supports both JSON lines
// file and SQLite storage.
package history

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	StorageTypeFile   = "file"
	StorageTypeSQLite = "sqlite"
)

// DefaultListLimit is used when List is called with a non-positive limit
const DefaultListLimit = 50

// ErrNotFound is returned when no record has the requested ID
var ErrNotFound = errors.New("history record not found")

// Record is one generation outcome
type Record struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Category    string    `json:"category"`
	Context     string    `json:"context,omitempty"`
	Tier        string    `json:"tier,omitempty"`
	Template    string    `json:"template,omitempty"`
	Source      string    `json:"source,omitempty"`
	Rejected    bool      `json:"rejected,omitempty"`
	Valid       bool      `json:"valid"`
	Diagnostics int       `json:"diagnostics"`
	Applied     []string  `json:"applied,omitempty"`
	Playbook    string    `json:"playbook,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Config holds configuration for the history store
type Config struct {
	StorageType string `json:"storage_type"` // StorageTypeFile or StorageTypeSQLite
	FilePath    string `json:"file_path"`
	DBPath      string `json:"db_path"`
}

// Store persists records to the configured backend
type Store struct {
	config Config
	logger *zap.Logger
	db     *sql.DB
	mu     sync.RWMutex
	now    func() time.Time
}

// NewStore creates a history store
func NewStore(config Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		config: config,
		logger: logger,
		now:    time.Now,
	}

	switch config.StorageType {
	case StorageTypeFile:
		if err := s.initFileStorage(); err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
	case StorageTypeSQLite:
		if err := s.initSQLiteStorage(); err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.StorageType)
	}

	return s, nil
}

func (s *Store) initFileStorage() error {
	if err := os.MkdirAll(filepath.Dir(s.config.FilePath), 0750); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	file, err := os.OpenFile(s.config.FilePath, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}
	return file.Close()
}

func (s *Store) initSQLiteStorage() error {
	if err := os.MkdirAll(filepath.Dir(s.config.DBPath), 0750); err != nil {
		return fmt.Errorf("failed to create history database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", s.config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			category TEXT NOT NULL,
			context TEXT,
			tier TEXT,
			template TEXT,
			source TEXT,
			rejected BOOLEAN NOT NULL DEFAULT 0,
			valid BOOLEAN NOT NULL,
			diagnostics INTEGER NOT NULL,
			applied TEXT,
			playbook TEXT,
			timestamp DATETIME NOT NULL
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create history table: %w", err)
	}

	s.db = db
	return nil
}

// Append stores r, assigning its ID and timestamp when unset, and returns the
// stored record
func (s *Store) Append(ctx context.Context, r Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now().UTC()
	}

	var err error
	switch s.config.StorageType {
	case StorageTypeFile:
		err = s.appendToFile(r)
	default:
		err = s.appendToSQLite(ctx, r)
	}
	if err != nil {
		return Record{}, err
	}

	s.logger.Info("History record stored",
		zap.String("id", r.ID),
		zap.String("storage", s.config.StorageType),
		zap.String("template", r.Template),
		zap.Bool("valid", r.Valid))

	return r, nil
}

func (s *Store) appendToFile(r Record) error {
	file, err := os.OpenFile(s.config.FilePath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write history record: %w", err)
	}
	return nil
}

func (s *Store) appendToSQLite(ctx context.Context, r Record) error {
	applied, err := json.Marshal(r.Applied)
	if err != nil {
		return fmt.Errorf("failed to marshal applied fixes: %w", err)
	}

	insertSQL := `
		INSERT INTO history (id, prompt, category, context, tier, template, source, rejected, valid, diagnostics, applied, playbook, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, insertSQL,
		r.ID, r.Prompt, r.Category, r.Context, r.Tier, r.Template, r.Source,
		r.Rejected, r.Valid, r.Diagnostics, string(applied), r.Playbook, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record into SQLite: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config.StorageType == StorageTypeFile {
		records, err := s.readFile()
		if err != nil {
			return nil, err
		}
		out := make([]Record, 0, min(limit, len(records)))
		for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, records[i])
		}
		return out, nil
	}

	query := `
		SELECT id, prompt, category, context, tier, template, source, rejected, valid, diagnostics, applied, playbook, timestamp
		FROM history
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		var ctxName, tier, template, source, applied, playbook sql.NullString
		if err := rows.Scan(&r.ID, &r.Prompt, &r.Category, &ctxName, &tier, &template, &source,
			&r.Rejected, &r.Valid, &r.Diagnostics, &applied, &playbook, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		r.Context = ctxName.String
		r.Tier = tier.String
		r.Template = template.String
		r.Source = source.String
		r.Playbook = playbook.String
		if applied.Valid && applied.String != "" {
			if err := json.Unmarshal([]byte(applied.String), &r.Applied); err != nil {
				return nil, fmt.Errorf("failed to decode applied fixes of %s: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}

	return records, nil
}

// Remove deletes the record with the given ID
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.StorageType == StorageTypeFile {
		return s.removeFromFile(id)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}

	s.logger.Info("History record removed", zap.String("id", id))
	return nil
}

func (s *Store) removeFromFile(id string) error {
	records, err := s.readFile()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}

	tmp := s.config.FilePath + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to rewrite history file: %w", err)
	}
	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, r := range kept {
		if err := enc.Encode(r); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to rewrite history file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to rewrite history file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to rewrite history file: %w", err)
	}
	if err := os.Rename(tmp, s.config.FilePath); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}

	s.logger.Info("History record removed", zap.String("id", id))
	return nil
}

func (s *Store) readFile() ([]Record, error) {
	file, err := os.Open(s.config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			s.logger.Warn("Skipping malformed history line", zap.Int("line", line), zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return records, nil
}

// Stats counts stored records per deployment context
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	if s.config.StorageType == StorageTypeFile {
		records, err := s.readFile()
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			stats[r.Context]++
		}
		return stats, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT COALESCE(context, ''), COUNT(*) FROM history GROUP BY context`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan history stats row: %w", err)
		}
		stats[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history stats rows: %w", err)
	}
	return stats, nil
}

// Ping checks that the backend is reachable
func (s *Store) Ping(ctx context.Context) error {
	if s.db != nil {
		return s.db.PingContext(ctx)
	}
	_, err := os.Stat(s.config.FilePath)
	return err
}

// Close closes the store and any open resources
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
