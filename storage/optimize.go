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
	"sync"

	"go.uber.org/zap"

	"github.com/aaronlmathis/etlrun/core"
)

// SQLOptimizer implements core.Optimizer. Marking a target is cheap
// bookkeeping; Optimize runs the storage maintenance for every marked
// table and clears the set.
type SQLOptimizer struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger

	mu     sync.Mutex
	marked []string
}

// NewSQLOptimizer creates an optimizer for the connection.
func NewSQLOptimizer(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQLOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLOptimizer{db: db, dialect: dialect, logger: logger}
}

// MarkOptimize implements the core.Optimizer interface.
func (o *SQLOptimizer) MarkOptimize(ctx context.Context, target *core.Target) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, table := range o.marked {
		if table == target.Table {
			return nil
		}
	}
	o.marked = append(o.marked, target.Table)

	o.logger.Info("marked target for optimize", zap.String("table", target.Table))
	return nil
}

// Marked returns the tables currently marked for optimization.
func (o *SQLOptimizer) Marked() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.marked...)
}

// Optimize implements the core.Optimizer interface.
func (o *SQLOptimizer) Optimize(ctx context.Context) error {
	o.mu.Lock()
	tables := o.marked
	o.marked = nil
	o.mu.Unlock()

	for _, table := range tables {
		var query string
		switch o.dialect {
		case DialectPostgres:
			query = fmt.Sprintf("VACUUM ANALYZE %s", table)
		default:
			query = fmt.Sprintf("ANALYZE %s", table)
		}

		if _, err := o.db.ExecContext(ctx, query); err != nil {
			return &ClientError{Op: "optimize", Err: err}
		}
		o.logger.Info("optimized target", zap.String("table", table))
	}

	return nil
}
