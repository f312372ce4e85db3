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

	"github.com/cockroachdb/errors"

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/status"
)

// History resolves facts about prior runs from the status log. Reports are
// ordered by their window's until timestamp, then by run end, so the most
// recent prior run wins even when failed runs carry a zero run window.
type History struct {
	db      *sql.DB
	dialect Dialect
}

// NewHistory creates a history reader over the status log.
func NewHistory(db *sql.DB, dialect Dialect) *History {
	return &History{db: db, dialect: dialect}
}

// LastOptimized returns the most recent prior run's recorded
// last-optimized timestamp for the module, or 0 without prior history.
func (h *History) LastOptimized(ctx context.Context, moduleID int) (int64, error) {
	query := fmt.Sprintf(
		"SELECT last_optimized_ts FROM %s WHERE module_id = %s ORDER BY until_ts DESC, run_end_ts DESC LIMIT 1",
		status.LogTarget().Table, h.dialect.placeholder(1))

	var ts int64
	err := h.db.QueryRowContext(ctx, query, moduleID).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "last optimized for module %d", moduleID)
	}
	return ts, nil
}

// LastRunDetail returns the most recent prior report for the module, or
// nil when the module has never run.
func (h *History) LastRunDetail(ctx context.Context, moduleID int) (*status.Report, error) {
	query := fmt.Sprintf(
		`SELECT organization_id, run_id, module_id, module_name, primordial_date,
			run_start_ts, run_end_ts, from_ts, until_ts, data_frequency, status,
			records_appended, last_optimized_ts, vacuum_retention_hours,
			input_config, parsed_config
		FROM %s WHERE module_id = %s ORDER BY until_ts DESC, run_end_ts DESC LIMIT 1`,
		status.LogTarget().Table, h.dialect.placeholder(1))

	var (
		report    status.Report
		frequency string
	)
	err := h.db.QueryRowContext(ctx, query, moduleID).Scan(
		&report.OrganizationID,
		&report.RunID,
		&report.ModuleID,
		&report.ModuleName,
		&report.PrimordialDate,
		&report.RunStartTS,
		&report.RunEndTS,
		&report.FromTS,
		&report.UntilTS,
		&frequency,
		&report.Status,
		&report.RecordsAppended,
		&report.LastOptimizedTS,
		&report.VacuumRetentionHours,
		&report.InputConfig,
		&report.ParsedConfig,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "last run detail for module %d", moduleID)
	}

	report.DataFrequency = core.DataFrequency(frequency)
	return &report, nil
}
