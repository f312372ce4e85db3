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

package status

import (
	"fmt"

	"github.com/aaronlmathis/etlrun/core"
)

// Package status holds the persisted audit record of one module run and
// the finalizer that appends it to the status log.
//
// Exactly one report is persisted per module invocation, regardless of
// outcome. The status string fully determines whether downstream tooling
// should alert.

const (
	// Success marks a run whose write completed and was counted.
	Success = "SUCCESS"
	// Empty marks a run whose source held no new data; the target was
	// never touched.
	Empty = "EMPTY"

	// RollbackSuccessful and RollbackFailed are the rollback outcomes
	// embedded in FAILED status strings.
	RollbackSuccessful = "ROLLBACK SUCCESSFUL"
	RollbackFailed     = "ROLLBACK FAILED"
)

// Failed composes the status string of a failed run from the rollback
// outcome and the original diagnostic message.
func Failed(rollbackOutcome, message string) string {
	return fmt.Sprintf("FAILED --> %s: ERROR:%s", rollbackOutcome, message)
}

// Report is the immutable audit record of one module run. All timestamps
// are epoch milliseconds. A failed run carries zero run window, zero
// records, and zero retention.
type Report struct {
	OrganizationID       string
	RunID                string
	ModuleID             int
	ModuleName           string
	PrimordialDate       string
	RunStartTS           int64
	RunEndTS             int64
	FromTS               int64
	UntilTS              int64
	DataFrequency        core.DataFrequency
	Status               string
	RecordsAppended      int64
	LastOptimizedTS      int64
	VacuumRetentionHours int64
	InputConfig          string
	ParsedConfig         string
}

// ToRecord flattens the report into the status-log column set.
func (r *Report) ToRecord() core.Record {
	return core.Record{
		"organization_id":        r.OrganizationID,
		"run_id":                 r.RunID,
		"module_id":              r.ModuleID,
		"module_name":            r.ModuleName,
		"primordial_date":        r.PrimordialDate,
		"run_start_ts":           r.RunStartTS,
		"run_end_ts":             r.RunEndTS,
		"from_ts":                r.FromTS,
		"until_ts":               r.UntilTS,
		"data_frequency":         string(r.DataFrequency),
		"status":                 r.Status,
		"records_appended":       r.RecordsAppended,
		"last_optimized_ts":      r.LastOptimizedTS,
		"vacuum_retention_hours": r.VacuumRetentionHours,
		"input_config":           r.InputConfig,
		"parsed_config":          r.ParsedConfig,
	}
}

// Columns lists the status-log columns in persisted order.
func Columns() []string {
	return []string{
		"organization_id",
		"run_id",
		"module_id",
		"module_name",
		"primordial_date",
		"run_start_ts",
		"run_end_ts",
		"from_ts",
		"until_ts",
		"data_frequency",
		"status",
		"records_appended",
		"last_optimized_ts",
		"vacuum_retention_hours",
		"input_config",
		"parsed_config",
	}
}

// LogTarget returns the fixed append-only status-log target. The log is
// keyed by (organization_id, run_id) and is the sole audit trail the
// kernel exposes to downstream consumers.
func LogTarget() *core.Target {
	return &core.Target{
		Table:              "etl_status_log",
		PrimaryKeys:        []string{"organization_id", "run_id"},
		IncrementalColumns: []string{"run_end_ts"},
		Frequency:          core.FrequencyDaily,
	}
}
