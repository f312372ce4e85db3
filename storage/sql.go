//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2026 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of ETLRun.
//
// ETLRun is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ETLRun is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with ETLRun. If not, see https://www.gnu.org/licenses/.

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/status"
)

// Package storage implements the kernel's durable-storage collaborators
// over database/sql: the append-writing StorageClient, the run-history
// lookups, and the optimize collaborator.

// Dialect selects placeholder style and maintenance statements.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// placeholder returns the 1-based parameter marker for the dialect.
func (d Dialect) placeholder(i int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// ClientError wraps storage client errors with context about the operation.
type ClientError struct {
	Op  string // The operation being performed (e.g., "write", "rollback")
	Err error  // The underlying error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("storage client %s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// ClientOptions configures the SQL storage client.
type ClientOptions struct {
	BatchSize     int           // Records per transaction
	QueryTimeout  time.Duration // Timeout applied to statements
	Transactional bool          // Wrap batches in transactions
}

// ClientOption represents a configuration function for ClientOptions.
type ClientOption func(*ClientOptions)

// WithBatchSize sets the number of records per transaction.
func WithBatchSize(size int) ClientOption {
	return func(opts *ClientOptions) {
		opts.BatchSize = size
	}
}

// WithQueryTimeout sets the per-statement timeout.
func WithQueryTimeout(timeout time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithTransactions enables or disables transaction wrapping.
func WithTransactions(enabled bool) ClientOption {
	return func(opts *ClientOptions) {
		opts.Transactional = enabled
	}
}

// appendWindow records, per table, the watermark span of the last append
// so a failed run can be rolled back to its pre-write state.
type appendWindow struct {
	column string
	low    int64
	high   int64
}

// SQLClient implements core.StorageClient over a database/sql connection.
type SQLClient struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	opts    ClientOptions

	mu         sync.Mutex
	lastAppend map[string]appendWindow
}

// NewSQLClient creates a storage client for the given connection.
func NewSQLClient(db *sql.DB, dialect Dialect, logger *zap.Logger, options ...ClientOption) *SQLClient {
	opts := ClientOptions{
		BatchSize:     1000,
		QueryTimeout:  30 * time.Second,
		Transactional: true,
	}
	for _, option := range options {
		option(&opts)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLClient{
		db:         db,
		dialect:    dialect,
		logger:     logger,
		opts:       opts,
		lastAppend: make(map[string]appendWindow),
	}
}

// Write implements the core.StorageClient interface. It appends all of
// the dataset's records to the target inside a transaction and records
// the written watermark window for rollback.
func (c *SQLClient) Write(ctx context.Context, ds core.Dataset, target *core.Target) (bool, error) {
	records, err := ds.Collect(ctx)
	if err != nil {
		return false, &ClientError{Op: "collect", Err: err}
	}
	if len(records) == 0 {
		return true, nil
	}

	columns := columnsOf(records[0])
	query := insertQuery(c.dialect, target.Table, columns)

	ctx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()

	var tx *sql.Tx
	exec := c.db.ExecContext
	if c.opts.Transactional {
		tx, err = c.db.BeginTx(ctx, nil)
		if err != nil {
			return false, &ClientError{Op: "begin", Err: err}
		}
		defer tx.Rollback()
		exec = tx.ExecContext
	}

	for _, record := range records {
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			values[i] = convertValue(record[col])
		}
		if _, err := exec(ctx, query, values...); err != nil {
			return false, &ClientError{Op: "write", Err: errors.Wrapf(err, "insert into %s", target.Table)}
		}
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return false, &ClientError{Op: "commit", Err: err}
		}
	}

	c.recordAppendWindow(target, records)

	c.logger.Debug("appended records to target",
		zap.String("table", target.Table),
		zap.Int("records", len(records)))

	return true, nil
}

// CountWindow implements the core.StorageClient interface.
func (c *SQLClient) CountWindow(ctx context.Context, target *core.Target, fromTS, untilTS int64) (int64, error) {
	column := target.WatermarkColumn()
	if column == "" {
		return 0, &ClientError{Op: "count_window", Err: errors.Newf("target %s has no incremental column", target.Table)}
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s >= %s AND %s < %s",
		target.Table,
		column, c.dialect.placeholder(1),
		column, c.dialect.placeholder(2))

	var count int64
	if err := c.db.QueryRowContext(ctx, query, fromTS, untilTS).Scan(&count); err != nil {
		return 0, &ClientError{Op: "count_window", Err: err}
	}
	return count, nil
}

// RollbackTarget implements the core.StorageClient interface. It deletes
// the watermark window recorded by the last Write to this target. When no
// write was recorded, the target is already in its pre-write state and
// the rollback is a no-op.
func (c *SQLClient) RollbackTarget(ctx context.Context, target *core.Target) error {
	c.mu.Lock()
	window, ok := c.lastAppend[target.Table]
	delete(c.lastAppend, target.Table)
	c.mu.Unlock()

	if !ok {
		c.logger.Info("no recorded append for target, nothing to roll back",
			zap.String("table", target.Table))
		return nil
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s >= %s AND %s <= %s",
		target.Table,
		window.column, c.dialect.placeholder(1),
		window.column, c.dialect.placeholder(2))

	if _, err := c.db.ExecContext(ctx, query, window.low, window.high); err != nil {
		return &ClientError{Op: "rollback", Err: errors.Wrapf(err, "delete window from %s", target.Table)}
	}

	c.logger.Info("rolled back last append",
		zap.String("table", target.Table),
		zap.Int64("from", window.low),
		zap.Int64("until", window.high))

	return nil
}

// EnsureTable creates the target table from a sample record when it does
// not exist yet.
func (c *SQLClient) EnsureTable(ctx context.Context, target *core.Target, sample core.Record) error {
	columns := columnsOf(sample)
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		defs = append(defs, fmt.Sprintf("%s %s", col, inferSQLType(sample[col])))
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", target.Table, strings.Join(defs, ", "))
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return &ClientError{Op: "ensure_table", Err: err}
	}
	return nil
}

// EnsureStatusLog creates the append-only status-log table.
func (c *SQLClient) EnsureStatusLog(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		organization_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		module_id BIGINT NOT NULL,
		module_name TEXT NOT NULL,
		primordial_date TEXT,
		run_start_ts BIGINT NOT NULL,
		run_end_ts BIGINT NOT NULL,
		from_ts BIGINT NOT NULL,
		until_ts BIGINT NOT NULL,
		data_frequency TEXT,
		status TEXT NOT NULL,
		records_appended BIGINT NOT NULL,
		last_optimized_ts BIGINT NOT NULL,
		vacuum_retention_hours BIGINT NOT NULL,
		input_config TEXT,
		parsed_config TEXT,
		PRIMARY KEY (organization_id, run_id)
	)`, status.LogTarget().Table)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return &ClientError{Op: "ensure_status_log", Err: err}
	}
	return nil
}

// recordAppendWindow captures the watermark span of the written records.
func (c *SQLClient) recordAppendWindow(target *core.Target, records []core.Record) {
	column := target.WatermarkColumn()
	if column == "" {
		return
	}

	var low, high int64
	found := false
	for _, record := range records {
		ts, ok := toMillis(record[column])
		if !ok {
			continue
		}
		if !found || ts < low {
			low = ts
		}
		if !found || ts > high {
			high = ts
		}
		found = true
	}
	if !found {
		return
	}

	c.mu.Lock()
	c.lastAppend[target.Table] = appendWindow{column: column, low: low, high: high}
	c.mu.Unlock()
}

// columnsOf returns the record's column names in deterministic order.
func columnsOf(record core.Record) []string {
	columns := make([]string, 0, len(record))
	for key := range record {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}

// insertQuery builds the INSERT statement for the dialect.
func insertQuery(dialect Dialect, table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "))
}

// inferSQLType infers a column type from a Go value.
func inferSQLType(value interface{}) string {
	switch value.(type) {
	case bool:
		return "BOOLEAN"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "BIGINT"
	case float32, float64:
		return "DOUBLE PRECISION"
	case time.Time:
		return "TIMESTAMP"
	case []byte:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// convertValue converts Go values to driver-compatible types.
func convertValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, time.Time, bool, int64, float64, string, []byte:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	case core.DataFrequency:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toMillis coerces watermark values to epoch milliseconds.
func toMillis(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case time.Time:
		return v.UnixMilli(), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
