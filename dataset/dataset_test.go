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

package dataset

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/etlrun/core"
)

func requiredIDTS() core.RequiredSchema {
	return core.RequiredSchema{Columns: []core.RequiredColumn{
		{Name: "id", NonNull: true},
		{Name: "ts"},
	}}
}

func TestMemoryIsEmpty(t *testing.T) {
	ctx := context.Background()

	empty, err := FromRecords(nil).IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	empty, err = FromRecords([]core.Record{{"id": 1}}).IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestMemoryVerifyMinimumSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("valid records pass", func(t *testing.T) {
		ds := FromRecords([]core.Record{
			{"id": 1, "ts": int64(100), "extra": "ok"},
		})
		validated, err := ds.VerifyMinimumSchema(ctx, requiredIDTS(), true)
		require.NoError(t, err)
		assert.NotNil(t, validated)
	})

	t.Run("missing column fails", func(t *testing.T) {
		ds := FromRecords([]core.Record{
			{"ts": int64(100)},
		})
		_, err := ds.VerifyMinimumSchema(ctx, requiredIDTS(), true)
		require.Error(t, err)

		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "id", schemaErr.Column)
	})

	t.Run("null in non-null column fails", func(t *testing.T) {
		ds := FromRecords([]core.Record{
			{"id": nil, "ts": int64(100)},
		})
		_, err := ds.VerifyMinimumSchema(ctx, requiredIDTS(), true)
		require.Error(t, err)

		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "id", schemaErr.Column)
	})

	t.Run("null in nullable column passes", func(t *testing.T) {
		ds := FromRecords([]core.Record{
			{"id": 1, "ts": nil},
		})
		_, err := ds.VerifyMinimumSchema(ctx, requiredIDTS(), true)
		require.NoError(t, err)
	})

	t.Run("non-null enforcement can be disabled", func(t *testing.T) {
		ds := FromRecords([]core.Record{
			{"id": nil, "ts": int64(100)},
		})
		_, err := ds.VerifyMinimumSchema(ctx, requiredIDTS(), false)
		require.NoError(t, err)
	})
}

func TestMemoryPartitions(t *testing.T) {
	ds := FromPartitionedRecords([]core.Record{{"id": 1}, {"id": 2}}, 3)

	n, known := ds.TryPartitionCount()
	assert.True(t, known)
	assert.Equal(t, 3, n)

	rebalanced := ds.Repartition(5)
	n, known = rebalanced.TryPartitionCount()
	assert.True(t, known)
	assert.Equal(t, 5, n)

	// Repartition preserves the records.
	count, err := rebalanced.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemoryCollectCopies(t *testing.T) {
	ds := FromRecords([]core.Record{{"id": 1}})

	records, err := ds.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	records[0]["id"] = 999
	again, err := ds.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 999, again[0]["id"], "collect shares the underlying records")
}

// sliceReader is a RecordReader over a fixed slice.
type sliceReader struct {
	records []core.Record
	pos     int
	closed  bool
	err     error
}

func (r *sliceReader) Read(ctx context.Context) (core.Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.pos >= len(r.records) {
		return nil, io.EOF
	}
	record := r.records[r.pos]
	r.pos++
	return record, nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

func TestStreamDrainsOnce(t *testing.T) {
	ctx := context.Background()
	reader := &sliceReader{records: []core.Record{
		{"id": 1, "ts": int64(100)},
		{"id": 2, "ts": int64(200)},
	}}
	stream := NewStream(reader)

	empty, err := stream.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
	assert.True(t, reader.closed, "drain closes the reader")

	count, err := stream.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	records, err := stream.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStreamNeverReportsPartitions(t *testing.T) {
	ctx := context.Background()
	stream := NewStream(&sliceReader{records: []core.Record{{"id": 1, "ts": int64(1)}}})

	validated, err := stream.VerifyMinimumSchema(ctx, requiredIDTS(), true)
	require.NoError(t, err)

	// Validation must not turn the stream into a partition-counted
	// dataset.
	_, known := validated.TryPartitionCount()
	assert.False(t, known)

	_, known = validated.Repartition(4).TryPartitionCount()
	assert.False(t, known)
}

func TestStreamPropagatesReaderError(t *testing.T) {
	stream := NewStream(&sliceReader{err: assert.AnError})

	_, err := stream.IsEmpty(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSchemaErrorMessage(t *testing.T) {
	err := &SchemaError{Column: "id", Row: 3, Reason: "null in non-null column"}
	assert.Equal(t, "schema validation: record 3 column id: null in non-null column", err.Error())
}
