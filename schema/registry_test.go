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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/etlrun/core"
)

func TestRegistryGet(t *testing.T) {
	registry := NewRegistry()
	registry.Register(1010, Require("!id", "ts"))

	required, err := registry.Get(&core.Module{ID: 1010, Name: "events"})
	require.NoError(t, err)
	require.Len(t, required.Columns, 2)
	assert.Equal(t, core.RequiredColumn{Name: "id", NonNull: true}, required.Columns[0])
	assert.Equal(t, core.RequiredColumn{Name: "ts"}, required.Columns[1])
}

func TestRegistryUnknownModule(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get(&core.Module{ID: 42, Name: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module 42")
}

func TestRequireParsesNonNullMarker(t *testing.T) {
	required := Require("!a", "b", "!c")

	assert.Equal(t, []core.RequiredColumn{
		{Name: "a", NonNull: true},
		{Name: "b"},
		{Name: "c", NonNull: true},
	}, required.Columns)
}
