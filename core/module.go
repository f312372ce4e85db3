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

package core

import "time"

// Module identifies one named, numbered stage of the pipeline. Its
// incremental window is resolved through the ConfigAccessor so a module
// value stays immutable for the duration of a run.
type Module struct {
	ID   int
	Name string
}

// DataFrequency describes how often a target accumulates data.
type DataFrequency string

const (
	FrequencyDaily     DataFrequency = "daily"
	FrequencyMilestone DataFrequency = "milestone"
)

// CountPolicy names the record-count path used after a successful write.
//
// Direct counting re-scans the written dataset. For source encodings where
// that re-scan is too costly (columnar files re-read from object storage),
// the count is re-derived from the already-materialized target filtered to
// the run's incremental window.
type CountPolicy int

const (
	// CountPolicyDirect counts the written dataset itself.
	CountPolicyDirect CountPolicy = iota
	// CountPolicyTargetScan recounts from the written target window.
	CountPolicyTargetScan
)

// Target describes the durable destination of a module's output. Targets
// are constructed once per pipeline configuration and are read-only during
// execution.
type Target struct {
	Table              string
	PrimaryKeys        []string
	IncrementalColumns []string
	Frequency          DataFrequency
	// OptimizeEvery overrides the default optimize cadence when non-zero.
	OptimizeEvery time.Duration
	CountPolicy   CountPolicy
}

// WatermarkColumn returns the column used for incremental window
// predicates. Targets with multiple incremental columns watermark on the
// first one.
func (t *Target) WatermarkColumn() string {
	if len(t.IncrementalColumns) == 0 {
		return ""
	}
	return t.IncrementalColumns[0]
}
