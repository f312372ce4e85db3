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

package etlrun

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/dataset"
	"github.com/aaronlmathis/etlrun/status"
)

func sampleDataset() core.Dataset {
	return dataset.FromRecords([]core.Record{
		{"id": 1, "ts": int64(100)},
		{"id": 2, "ts": int64(200)},
		{"id": 3, "ts": int64(300)},
	})
}

func TestAppendSuccessReport(t *testing.T) {
	k := newTestKernel()
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	k.freeze(now)

	report, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, status.Success, report.Status)
	assert.Equal(t, int64(3), report.RecordsAppended)
	assert.Equal(t, k.cfg.from.UnixMilli(), report.FromTS)
	assert.Equal(t, k.cfg.until.UnixMilli(), report.UntilTS)
	assert.Equal(t, now.UnixMilli(), report.RunStartTS)
	assert.Equal(t, now.UnixMilli(), report.RunEndTS)
	assert.Equal(t, core.FrequencyDaily, report.DataFrequency)
	assert.Equal(t, 1, k.finalizer.count())
}

func TestAppendUnsuccessfulWriteProducesFailedStatus(t *testing.T) {
	k := newTestKernel()
	k.db.writeOK = false

	report, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
	require.Error(t, err)
	require.NotNil(t, report)

	assert.True(t, errors.Is(err, core.ErrModuleFailed))
	assert.Equal(t,
		"FAILED --> ROLLBACK SUCCESSFUL: ERROR:write to events reported unsuccessful",
		report.Status)
	assert.Equal(t, []string{"events"}, k.db.rollbacks)
	assert.Equal(t, 1, k.finalizer.count())
}

func TestAppendRollbackFailureDowngradesOutcome(t *testing.T) {
	k := newTestKernel()
	k.db.writeErr = errors.New("connection reset")
	k.db.rollbackErr = errors.New("target unreachable")

	report, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
	require.Error(t, err)
	require.NotNil(t, report)

	assert.True(t, errors.Is(err, core.ErrModuleFailed))
	assert.True(t, strings.HasPrefix(report.Status, "FAILED --> ROLLBACK FAILED: ERROR:"), report.Status)
	assert.Contains(t, report.Status, "connection reset")
	assert.Equal(t, 1, k.finalizer.count())
}

func TestAppendRestoresSessionOnSuccessOnly(t *testing.T) {
	t.Run("success restores prior value", func(t *testing.T) {
		k := newTestKernel()
		k.cfg.overrides = map[string]string{"shuffle.partitions": "4"}
		k.ec.Session.Set("shuffle.partitions", "2")

		_, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
		require.NoError(t, err)

		v, ok := k.ec.Session.Get("shuffle.partitions")
		require.True(t, ok)
		assert.Equal(t, "2", v)
	})

	t.Run("failure leaves override in place", func(t *testing.T) {
		k := newTestKernel()
		k.cfg.overrides = map[string]string{"shuffle.partitions": "4"}
		k.ec.Session.Set("shuffle.partitions", "2")
		k.db.writeOK = false

		_, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
		require.Error(t, err)

		v, ok := k.ec.Session.Get("shuffle.partitions")
		require.True(t, ok)
		assert.Equal(t, "4", v)
	})

	t.Run("success unsets a previously absent key", func(t *testing.T) {
		k := newTestKernel()
		k.cfg.overrides = map[string]string{"shuffle.partitions": "4"}

		_, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
		require.NoError(t, err)

		_, ok := k.ec.Session.Get("shuffle.partitions")
		assert.False(t, ok)
	})
}

func TestAppendCountsFromTargetScanPolicy(t *testing.T) {
	k := newTestKernel()
	k.target.CountPolicy = core.CountPolicyTargetScan
	k.db.countWindow = 42

	report, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
	require.NoError(t, err)

	assert.Equal(t, int64(42), report.RecordsAppended)
	assert.Equal(t, 1, k.db.countWindowCalls)
}

func TestAppendDirectPolicySkipsTargetScan(t *testing.T) {
	k := newTestKernel()

	report, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.RecordsAppended)
	assert.Zero(t, k.db.countWindowCalls)
}

func TestAppendAdvancesLastOptimizedWhenDue(t *testing.T) {
	k := newTestKernel()
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	k.freeze(now)
	k.history.lastOptimized = now.Add(-10 * 24 * time.Hour).UnixMilli()

	report, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
	require.NoError(t, err)

	assert.Equal(t, k.cfg.until.UnixMilli(), report.LastOptimizedTS)
	assert.Equal(t, []string{"events"}, k.optimizer.marked)
}

func TestAppendCarriesLastOptimizedWhenNotDue(t *testing.T) {
	k := newTestKernel()
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	k.freeze(now)
	previous := now.Add(-24 * time.Hour).UnixMilli()
	k.history.lastOptimized = previous

	report, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
	require.NoError(t, err)

	assert.Equal(t, previous, report.LastOptimizedTS)
	assert.Empty(t, k.optimizer.marked)
}

func TestAppendFinalizeFailureIsDefect(t *testing.T) {
	k := newTestKernel()
	k.finalizer.err = errors.New("status log unavailable")

	report, err := k.writer.Append(context.Background(), sampleDataset(), k.module, k.target)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.False(t, errors.Is(err, core.ErrModuleFailed))
}

func TestSizeShufflePartitions(t *testing.T) {
	sess := NewSession()
	assert.Equal(t, 1, sizeShufflePartitions(0, false, sess))
	assert.Equal(t, 8, sizeShufflePartitions(8, true, sess))

	sess.Set(shufflePartitionsKey, "16")
	assert.Equal(t, 16, sizeShufflePartitions(8, true, sess))

	sess.Set(shufflePartitionsKey, "not-a-number")
	assert.Equal(t, 8, sizeShufflePartitions(8, true, sess))
}
