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

	"github.com/cockroachdb/errors"

	"github.com/aaronlmathis/etlrun/core"
)

// RecordReader streams records from a source until io.EOF.
type RecordReader interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (core.Record, error)
	// Close releases any resources held by the reader.
	Close() error
}

// Stream wraps a RecordReader as a core.Dataset. A stream is unbounded
// from the engine's point of view, so it never reports a static partition
// count, even after it has been drained into memory for counting or
// validation.
type Stream struct {
	reader  RecordReader
	cached  []core.Record
	drained bool
}

// NewStream creates a streaming dataset over the reader.
func NewStream(reader RecordReader) *Stream {
	return &Stream{reader: reader}
}

// drain pulls the remaining records out of the reader exactly once.
func (s *Stream) drain(ctx context.Context) ([]core.Record, error) {
	if s.drained {
		return s.cached, nil
	}

	defer s.reader.Close()
	for {
		record, err := s.reader.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "drain stream")
		}
		if len(record) == 0 {
			continue
		}
		s.cached = append(s.cached, record)
	}

	s.drained = true
	return s.cached, nil
}

// IsEmpty implements the core.Dataset interface.
func (s *Stream) IsEmpty(ctx context.Context) (bool, error) {
	records, err := s.drain(ctx)
	if err != nil {
		return false, err
	}
	return len(records) == 0, nil
}

// VerifyMinimumSchema implements the core.Dataset interface. The stream
// stays a stream after validation so partition probing still reports
// absence.
func (s *Stream) VerifyMinimumSchema(ctx context.Context, required core.RequiredSchema, enforceNonNull bool) (core.Dataset, error) {
	records, err := s.drain(ctx)
	if err != nil {
		return nil, err
	}
	if err := verifyRecords(records, required, enforceNonNull); err != nil {
		return nil, err
	}
	return s, nil
}

// TryPartitionCount implements the core.Dataset interface. Streaming
// sources have no static partition count.
func (s *Stream) TryPartitionCount() (int, bool) {
	return 0, false
}

// Count implements the core.Dataset interface.
func (s *Stream) Count(ctx context.Context) (int64, error) {
	records, err := s.drain(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// Collect implements the core.Dataset interface.
func (s *Stream) Collect(ctx context.Context) ([]core.Record, error) {
	records, err := s.drain(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Record, len(records))
	copy(out, records)
	return out, nil
}

// Repartition implements the core.Dataset interface. Re-balancing an
// unbounded stream is a no-op.
func (s *Stream) Repartition(n int) core.Dataset {
	return s
}
