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
	"fmt"

	"github.com/aaronlmathis/etlrun/core"
)

// Package dataset provides the in-process implementations of the
// core.Dataset capability interface: a materialized record set with known
// partitioning and a streaming wrapper with no static partition count.

// SchemaError reports a minimum-schema violation found during validation.
type SchemaError struct {
	Column string // Offending column
	Row    int    // Zero-based record index
	Reason string // What the record violated
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation: record %d column %s: %s", e.Row, e.Column, e.Reason)
}

// Memory is a fully materialized dataset with a known partition count.
type Memory struct {
	records    []core.Record
	partitions int
}

// FromRecords creates a single-partition materialized dataset.
func FromRecords(records []core.Record) *Memory {
	return &Memory{records: records, partitions: 1}
}

// FromPartitionedRecords creates a materialized dataset with an explicit
// partition count, as observed from the source layout.
func FromPartitionedRecords(records []core.Record, partitions int) *Memory {
	if partitions < 1 {
		partitions = 1
	}
	return &Memory{records: records, partitions: partitions}
}

// IsEmpty implements the core.Dataset interface.
func (m *Memory) IsEmpty(ctx context.Context) (bool, error) {
	return len(m.records) == 0, nil
}

// VerifyMinimumSchema implements the core.Dataset interface. Every record
// must carry all required columns; with enforceNonNull, required non-null
// columns must also hold non-nil values.
func (m *Memory) VerifyMinimumSchema(ctx context.Context, required core.RequiredSchema, enforceNonNull bool) (core.Dataset, error) {
	if err := verifyRecords(m.records, required, enforceNonNull); err != nil {
		return nil, err
	}
	return m, nil
}

// TryPartitionCount implements the core.Dataset interface.
func (m *Memory) TryPartitionCount() (int, bool) {
	return m.partitions, true
}

// Count implements the core.Dataset interface.
func (m *Memory) Count(ctx context.Context) (int64, error) {
	return int64(len(m.records)), nil
}

// Collect implements the core.Dataset interface.
func (m *Memory) Collect(ctx context.Context) ([]core.Record, error) {
	out := make([]core.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

// Repartition implements the core.Dataset interface. Records are shared;
// only the physical layout hint changes.
func (m *Memory) Repartition(n int) core.Dataset {
	if n < 1 {
		n = 1
	}
	return &Memory{records: m.records, partitions: n}
}

// verifyRecords checks each record against the required minimum schema.
func verifyRecords(records []core.Record, required core.RequiredSchema, enforceNonNull bool) error {
	for i, record := range records {
		for _, col := range required.Columns {
			value, exists := record[col.Name]
			if !exists {
				return &SchemaError{Column: col.Name, Row: i, Reason: "missing required column"}
			}
			if enforceNonNull && col.NonNull && value == nil {
				return &SchemaError{Column: col.Name, Row: i, Reason: "null in non-null column"}
			}
		}
	}
	return nil
}
