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

package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Package config loads the pipeline configuration file and exposes it
// through the core.ConfigAccessor interface. The raw file and the
// resolved settings are both carried forward verbatim so every status
// report can echo them for audit reproducibility.

// ModuleSource declares where a module pulls its records from.
type ModuleSource struct {
	Type       string `mapstructure:"type"` // csv, json, s3, mongo, parquet
	Path       string `mapstructure:"path"`
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	Region     string `mapstructure:"region"`
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	Watermark  string `mapstructure:"watermark"`
}

// ModuleWindow is one module's identity, incremental window, target
// declaration, and source as declared in the configuration.
type ModuleWindow struct {
	ID    int       `mapstructure:"id"`
	Name  string    `mapstructure:"name"`
	From  time.Time `mapstructure:"from_time"`
	Until time.Time `mapstructure:"until_time"`

	Table              string       `mapstructure:"table"`
	PrimaryKeys        []string     `mapstructure:"primary_keys"`
	IncrementalColumns []string     `mapstructure:"incremental_columns"`
	Frequency          string       `mapstructure:"frequency"`
	CountPolicy        string       `mapstructure:"count_policy"`
	RequiredColumns    []string     `mapstructure:"required_columns"`
	Source             ModuleSource `mapstructure:"source"`
}

// PipelineConfig implements core.ConfigAccessor from a loaded
// configuration file.
type PipelineConfig struct {
	organizationID       string
	primordialDate       string
	firstRun             bool
	localTesting         bool
	vacuumRetentionHours int64
	overrides            map[string]string
	windows              map[int]ModuleWindow
	ordered              []ModuleWindow
	storageDriver        string
	storageDSN           string
	raw                  string
	parsed               string
}

// Load reads the configuration file at path.
func Load(path string) (*PipelineConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ETLRUN")
	v.AutomaticEnv()

	v.SetDefault("vacuum_retention_hours", 168)
	v.SetDefault("storage.driver", "postgres")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read pipeline config %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read pipeline config %s", path)
	}

	parsed, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, errors.Wrap(err, "serialize resolved config")
	}

	var declared []ModuleWindow
	timeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.UnmarshalKey("modules", &declared, timeHook); err != nil {
		return nil, errors.Wrap(err, "parse module windows")
	}

	windows := make(map[int]ModuleWindow, len(declared))
	for _, w := range declared {
		windows[w.ID] = w
	}

	cfg := &PipelineConfig{
		organizationID:       v.GetString("organization_id"),
		primordialDate:       v.GetString("primordial_date"),
		firstRun:             v.GetBool("first_run"),
		localTesting:         v.GetBool("local_testing"),
		vacuumRetentionHours: v.GetInt64("vacuum_retention_hours"),
		overrides:            v.GetStringMapString("session_overrides"),
		windows:              windows,
		ordered:              declared,
		storageDriver:        v.GetString("storage.driver"),
		storageDSN:           v.GetString("storage.dsn"),
		raw:                  string(raw),
		parsed:               string(parsed),
	}
	if cfg.overrides == nil {
		cfg.overrides = make(map[string]string)
	}

	if cfg.organizationID == "" {
		return nil, errors.New("pipeline config requires organization_id")
	}

	return cfg, nil
}

// StorageDriver returns the configured target storage driver,
// "postgres" or "sqlite".
func (c *PipelineConfig) StorageDriver() string { return c.storageDriver }

// StorageDSN returns the target storage connection string.
func (c *PipelineConfig) StorageDSN() string { return c.storageDSN }

// Modules returns the declared module windows in file order.
func (c *PipelineConfig) Modules() []ModuleWindow {
	return append([]ModuleWindow(nil), c.ordered...)
}

// OrganizationID implements the core.ConfigAccessor interface.
func (c *PipelineConfig) OrganizationID() string { return c.organizationID }

// PrimordialDate implements the core.ConfigAccessor interface.
func (c *PipelineConfig) PrimordialDate() string { return c.primordialDate }

// FromTime implements the core.ConfigAccessor interface.
func (c *PipelineConfig) FromTime(moduleID int) time.Time {
	return c.windows[moduleID].From
}

// UntilTime implements the core.ConfigAccessor interface.
func (c *PipelineConfig) UntilTime(moduleID int) time.Time {
	return c.windows[moduleID].Until
}

// IsFirstRun implements the core.ConfigAccessor interface.
func (c *PipelineConfig) IsFirstRun() bool { return c.firstRun }

// IsLocalTesting implements the core.ConfigAccessor interface.
func (c *PipelineConfig) IsLocalTesting() bool { return c.localTesting }

// VacuumRetentionHours implements the core.ConfigAccessor interface.
func (c *PipelineConfig) VacuumRetentionHours() int64 { return c.vacuumRetentionHours }

// SessionOverrides implements the core.ConfigAccessor interface.
func (c *PipelineConfig) SessionOverrides() map[string]string {
	out := make(map[string]string, len(c.overrides))
	for k, v := range c.overrides {
		out[k] = v
	}
	return out
}

// InputConfig implements the core.ConfigAccessor interface.
func (c *PipelineConfig) InputConfig() string { return c.raw }

// ParsedConfig implements the core.ConfigAccessor interface.
func (c *PipelineConfig) ParsedConfig() string { return c.parsed }
