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

package schema

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/aaronlmathis/etlrun/core"
)

// Registry is a static core.SchemaRegistry: a per-module catalog of
// minimum required schemas, populated during pipeline construction.
type Registry struct {
	mu       sync.RWMutex
	byModule map[int]core.RequiredSchema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byModule: make(map[int]core.RequiredSchema)}
}

// Register stores the required schema for a module id.
func (r *Registry) Register(moduleID int, required core.RequiredSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byModule[moduleID] = required
}

// Get implements the core.SchemaRegistry interface.
func (r *Registry) Get(module *core.Module) (core.RequiredSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	required, ok := r.byModule[module.ID]
	if !ok {
		return core.RequiredSchema{}, errors.Newf("no required schema registered for module %d (%s)", module.ID, module.Name)
	}
	return required, nil
}

// Require is a convenience constructor for a required schema. Column
// names prefixed with "!" are non-null.
func Require(columns ...string) core.RequiredSchema {
	required := core.RequiredSchema{Columns: make([]core.RequiredColumn, 0, len(columns))}
	for _, name := range columns {
		col := core.RequiredColumn{Name: name}
		if len(name) > 0 && name[0] == '!' {
			col.Name = name[1:]
			col.NonNull = true
		}
		required.Columns = append(required.Columns, col)
	}
	return required
}
