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

package etlrun

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/aaronlmathis/etlrun/core"
	"github.com/aaronlmathis/etlrun/status"
)

// WriteFunc is the write step of a module definition: it takes the final
// dataset and the module and produces durable side effects plus the
// persisted report.
type WriteFunc func(ctx context.Context, ds core.Dataset, module *core.Module) (*status.Report, error)

// EtlDefinition binds one module invocation: a source dataset, an ordered
// optional chain of transform stages, a write function, and the owning
// module. A definition is constructed per invocation and consumed exactly
// once via Process.
type EtlDefinition struct {
	ec         *ExecContext
	source     core.Dataset
	transforms []core.TransformStage
	write      WriteFunc
	module     *core.Module
	target     *core.Target
	registry   core.SchemaRegistry
	empty      *EmptyInputHandler
	failure    *FailureHandler
}

// DefinitionBuilder provides a fluent API for constructing module
// definitions. Use NewDefinition to create a builder, then chain From,
// Transform, and the remaining configuration methods.
type DefinitionBuilder struct {
	def *EtlDefinition
}

// NewDefinition creates a builder for one module invocation.
func NewDefinition(ec *ExecContext) *DefinitionBuilder {
	return &DefinitionBuilder{
		def: &EtlDefinition{
			ec:         ec,
			transforms: make([]core.TransformStage, 0),
		},
	}
}

// From sets the source dataset.
func (b *DefinitionBuilder) From(source core.Dataset) *DefinitionBuilder {
	b.def.source = source
	return b
}

// Transform appends a stage to the transform chain.
func (b *DefinitionBuilder) Transform(stage core.TransformStage) *DefinitionBuilder {
	b.def.transforms = append(b.def.transforms, stage)
	return b
}

// Map appends a transform stage from a plain function.
func (b *DefinitionBuilder) Map(fn func(ctx context.Context, ds core.Dataset) (core.Dataset, error)) *DefinitionBuilder {
	return b.Transform(core.TransformStageFunc(fn))
}

// ForModule sets the owning module.
func (b *DefinitionBuilder) ForModule(module *core.Module) *DefinitionBuilder {
	b.def.module = module
	return b
}

// To sets the target the module writes to.
func (b *DefinitionBuilder) To(target *core.Target) *DefinitionBuilder {
	b.def.target = target
	return b
}

// WriteWith sets the write function invoked with the final dataset.
func (b *DefinitionBuilder) WriteWith(fn WriteFunc) *DefinitionBuilder {
	b.def.write = fn
	return b
}

// WithSchemaRegistry sets the registry resolving the module's minimum
// required schema.
func (b *DefinitionBuilder) WithSchemaRegistry(registry core.SchemaRegistry) *DefinitionBuilder {
	b.def.registry = registry
	return b
}

// OnEmpty sets the handler invoked when the source holds no new data.
func (b *DefinitionBuilder) OnEmpty(handler *EmptyInputHandler) *DefinitionBuilder {
	b.def.empty = handler
	return b
}

// OnFailure sets the handler for failures ahead of the write step.
func (b *DefinitionBuilder) OnFailure(handler *FailureHandler) *DefinitionBuilder {
	b.def.failure = handler
	return b
}

// Build validates and returns the definition.
func (b *DefinitionBuilder) Build() (*EtlDefinition, error) {
	if b.def.source == nil {
		return nil, errors.New("definition requires a source dataset")
	}
	if b.def.module == nil {
		return nil, errors.New("definition requires a module")
	}
	if b.def.target == nil {
		return nil, errors.New("definition requires a target")
	}
	if b.def.write == nil {
		return nil, errors.New("definition requires a write function")
	}
	if b.def.registry == nil {
		return nil, errors.New("definition requires a schema registry")
	}
	if b.def.empty == nil {
		return nil, errors.New("definition requires an empty-input handler")
	}
	if b.def.failure == nil {
		return nil, errors.New("definition requires a failure handler")
	}
	return b.def, nil
}

// Process executes the module: validate the source against its minimum
// required schema, run the transform chain in order, and invoke the write
// function. An empty source skips the write entirely and produces an
// EMPTY report. A module-failed signal is logged and not re-raised — the
// FAILED report is already durable by the time it surfaces here. Any
// other error is a defect and propagates to the caller.
func (d *EtlDefinition) Process(ctx context.Context) (*status.Report, error) {
	report, err := d.run(ctx)
	switch {
	case err == nil:
		return report, nil
	case errors.Is(err, core.ErrNoNewData):
		d.ec.Logger.Info("no new data for module",
			zap.Int("module_id", d.module.ID),
			zap.String("module_name", d.module.Name),
			zap.String("reason", err.Error()))
		return d.empty.HandleNoNewData(ctx, d.module, d.target)
	case errors.Is(err, core.ErrModuleFailed):
		d.ec.Logger.Error("module execution failed",
			zap.Int("module_id", d.module.ID),
			zap.String("module_name", d.module.Name),
			zap.Error(err))
		return report, nil
	default:
		return nil, err
	}
}

func (d *EtlDefinition) run(ctx context.Context) (*status.Report, error) {
	empty, err := d.source.IsEmpty(ctx)
	if err != nil {
		return d.failure.FailModule(ctx, d.module, d.target, errors.Wrap(err, "probe source").Error())
	}
	if empty {
		return nil, errors.Wrapf(core.ErrNoNewData, "source for module %s holds no records in window", d.module.Name)
	}

	required, err := d.registry.Get(d.module)
	if err != nil {
		return d.failure.FailModule(ctx, d.module, d.target, errors.Wrap(err, "resolve required schema").Error())
	}

	validated, err := d.source.VerifyMinimumSchema(ctx, required, true)
	if err != nil {
		d.ec.Logger.Error("source failed minimum schema validation",
			zap.Int("module_id", d.module.ID),
			zap.Error(err))
		return d.failure.FailModule(ctx, d.module, d.target, err.Error())
	}

	if partitions, known := validated.TryPartitionCount(); known {
		d.ec.RecordSourcePartitions(partitions)
		d.ec.Logger.Debug("observed source partitions",
			zap.Int("module_id", d.module.ID),
			zap.Int("partitions", partitions))
	} else {
		// Streaming sources carry no static partition count; not an error.
		d.ec.Logger.Debug("source partition count unavailable",
			zap.Int("module_id", d.module.ID))
	}

	current := validated
	for i, stage := range d.transforms {
		current, err = stage.Apply(ctx, current)
		if err != nil {
			return d.failure.FailModule(ctx, d.module, d.target,
				errors.Wrapf(err, "transform stage %d", i).Error())
		}
	}

	return d.write(ctx, current, d.module)
}
