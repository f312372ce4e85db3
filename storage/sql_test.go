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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/dataset"
	"github.com/aaronlmathis/etlrun/status"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func eventsTarget() *core.Target {
	return &core.Target{
		Table:              "events",
		PrimaryKeys:        []string{"id"},
		IncrementalColumns: []string{"ts"},
		Frequency:          core.FrequencyDaily,
		CountPolicy:        core.CountPolicyTargetScan,
	}
}

func TestSQLClientWriteCountRollback(t *testing.T) {
	db := openTestDB(t)
	client := NewSQLClient(db, DialectSQLite, nil)
	ctx := context.Background()
	target := eventsTarget()

	sample := core.Record{"id": 1, "ts": int64(100), "name": "a"}
	require.NoError(t, client.EnsureTable(ctx, target, sample))

	ds := dataset.FromRecords([]core.Record{
		{"id": 1, "ts": int64(100), "name": "a"},
		{"id": 2, "ts": int64(200), "name": "b"},
		{"id": 3, "ts": int64(300), "name": "c"},
	})

	ok, err := client.Write(ctx, ds, target)
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := client.CountWindow(ctx, target, 100, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "window is half-open")

	count, err = client.CountWindow(ctx, target, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Rollback deletes exactly the recorded watermark span.
	require.NoError(t, client.RollbackTarget(ctx, target))

	count, err = client.CountWindow(ctx, target, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSQLClientRollbackWithoutWriteIsNoop(t *testing.T) {
	db := openTestDB(t)
	client := NewSQLClient(db, DialectSQLite, nil)

	// No table exists and nothing was written; the rollback must not
	// touch storage at all.
	require.NoError(t, client.RollbackTarget(context.Background(), eventsTarget()))
}

func TestSQLClientWriteEmptyDatasetSucceeds(t *testing.T) {
	db := openTestDB(t)
	client := NewSQLClient(db, DialectSQLite, nil)

	ok, err := client.Write(context.Background(), dataset.FromRecords(nil), eventsTarget())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLClientWriteFailureRollsBackTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	client := NewSQLClient(db, DialectPostgres, nil)
	ds := dataset.FromRecords([]core.Record{{"id": 1, "ts": int64(100)}})

	ok, err := client.Write(context.Background(), ds, eventsTarget())
	require.Error(t, err)
	assert.False(t, ok)

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, "write", clientErr.Op)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryOverStatusLog(t *testing.T) {
	db := openTestDB(t)
	client := NewSQLClient(db, DialectSQLite, nil)
	ctx := context.Background()

	require.NoError(t, client.EnsureStatusLog(ctx))

	finalizer := status.NewLogFinalizer(client, nil)
	older := &status.Report{
		OrganizationID:  "org-1",
		RunID:           "run-1",
		ModuleID:        1010,
		ModuleName:      "events",
		RunEndTS:        1000,
		UntilTS:         5000,
		DataFrequency:   core.FrequencyDaily,
		Status:          status.Success,
		LastOptimizedTS: 111,
	}
	newer := &status.Report{
		OrganizationID:  "org-1",
		RunID:           "run-2",
		ModuleID:        1010,
		ModuleName:      "events",
		RunEndTS:        2000,
		UntilTS:         9000,
		DataFrequency:   core.FrequencyDaily,
		Status:          status.Success,
		RecordsAppended: 7,
		LastOptimizedTS: 222,
	}
	require.NoError(t, finalizer.Finalize(ctx, older))
	require.NoError(t, finalizer.Finalize(ctx, newer))

	history := NewHistory(db, DialectSQLite)

	ts, err := history.LastOptimized(ctx, 1010)
	require.NoError(t, err)
	assert.Equal(t, int64(222), ts)

	detail, err := history.LastRunDetail(ctx, 1010)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "run-2", detail.RunID)
	assert.Equal(t, int64(7), detail.RecordsAppended)
	assert.Equal(t, core.FrequencyDaily, detail.DataFrequency)
}

func TestHistoryWithoutPriorRuns(t *testing.T) {
	db := openTestDB(t)
	client := NewSQLClient(db, DialectSQLite, nil)
	ctx := context.Background()

	require.NoError(t, client.EnsureStatusLog(ctx))

	history := NewHistory(db, DialectSQLite)

	ts, err := history.LastOptimized(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	detail, err := history.LastRunDetail(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestSQLOptimizerMarkAndRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE events (id BIGINT, ts BIGINT)")
	require.NoError(t, err)

	optimizer := NewSQLOptimizer(db, DialectSQLite, nil)
	target := eventsTarget()

	require.NoError(t, optimizer.MarkOptimize(ctx, target))
	require.NoError(t, optimizer.MarkOptimize(ctx, target), "marking twice dedupes")
	assert.Equal(t, []string{"events"}, optimizer.Marked())

	require.NoError(t, optimizer.Optimize(ctx))
	assert.Empty(t, optimizer.Marked(), "optimize clears the marked set")
}

func TestInsertQueryPlaceholders(t *testing.T) {
	columns := []string{"a", "b"}
	assert.Equal(t,
		"INSERT INTO t (a, b) VALUES ($1, $2)",
		insertQuery(DialectPostgres, "t", columns))
	assert.Equal(t,
		"INSERT INTO t (a, b) VALUES (?, ?)",
		insertQuery(DialectSQLite, "t", columns))
}

func TestConvertValue(t *testing.T) {
	assert.Equal(t, int64(5), convertValue(5))
	assert.Equal(t, "daily", convertValue(core.FrequencyDaily))
	assert.Nil(t, convertValue(nil))
	assert.Equal(t, float64(1.5), convertValue(float32(1.5)))
}
