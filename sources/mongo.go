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

package sources

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/etlrun/core"
)

// MongoSourceError provides structured error information for MongoDB
// source operations.
type MongoSourceError struct {
	Op         string
	Collection string
	Err        error
}

func (e *MongoSourceError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo source %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo source %s: %v", e.Op, e.Err)
}

func (e *MongoSourceError) Unwrap() error {
	return e.Err
}

// MongoSourceOptions configures the MongoDB source. The incremental
// window becomes a range predicate on the watermark field, pushed to
// the server so only in-window documents cross the wire.
type MongoSourceOptions struct {
	URI             string
	Database        string
	Collection      string
	Username        string
	Password        string
	AuthDatabase    string
	BatchSize       int32
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	Filter          bson.M
	Sort            bson.M
	Window          Window
	WatermarkColumn string
}

// SourceOptionMongo is a functional option for MongoSourceOptions.
type SourceOptionMongo func(*MongoSourceOptions)

func WithMongoURI(uri string) SourceOptionMongo {
	return func(opts *MongoSourceOptions) { opts.URI = uri }
}

func WithMongoDB(database string) SourceOptionMongo {
	return func(opts *MongoSourceOptions) { opts.Database = database }
}

func WithMongoCollection(collection string) SourceOptionMongo {
	return func(opts *MongoSourceOptions) { opts.Collection = collection }
}

func WithMongoAuth(username, password, authDB string) SourceOptionMongo {
	return func(opts *MongoSourceOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

func WithMongoFilter(filter bson.M) SourceOptionMongo {
	return func(opts *MongoSourceOptions) { opts.Filter = filter }
}

func WithMongoSort(sort bson.M) SourceOptionMongo {
	return func(opts *MongoSourceOptions) { opts.Sort = sort }
}

func WithMongoBatchSize(batchSize int32) SourceOptionMongo {
	return func(opts *MongoSourceOptions) { opts.BatchSize = batchSize }
}

func WithMongoTimeout(timeout time.Duration) SourceOptionMongo {
	return func(opts *MongoSourceOptions) { opts.Timeout = timeout }
}

func WithMongoPoolSize(min, max uint64) SourceOptionMongo {
	return func(opts *MongoSourceOptions) {
		opts.MinPoolSize = min
		opts.MaxPoolSize = max
	}
}

// WithMongoWindow pushes the incremental window down as a range
// predicate on the watermark field.
func WithMongoWindow(w Window, watermarkColumn string) SourceOptionMongo {
	return func(opts *MongoSourceOptions) {
		opts.Window = w
		opts.WatermarkColumn = watermarkColumn
	}
}

// MongoSource streams documents from a MongoDB collection bounded to
// the incremental window.
type MongoSource struct {
	client     *mongo.Client
	collection *mongo.Collection
	cursor     *mongo.Cursor
	opts       *MongoSourceOptions
	connected  bool
}

// NewMongoSource creates a MongoDB source with configurable options.
// The connection is established lazily on the first Read.
func NewMongoSource(options ...SourceOptionMongo) (*MongoSource, error) {
	opts := &MongoSourceOptions{
		URI:         "mongodb://localhost:27017",
		BatchSize:   1000,
		Timeout:     30 * time.Second,
		MaxPoolSize: 100,
		MinPoolSize: 5,
	}

	for _, option := range options {
		option(opts)
	}

	if opts.Database == "" {
		return nil, &MongoSourceError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &MongoSourceError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}

	return &MongoSource{opts: opts}, nil
}

// Connect establishes the MongoDB connection.
func (m *MongoSource) Connect(ctx context.Context) error {
	if m.connected {
		return nil
	}

	clientOpts := options.Client().ApplyURI(m.opts.URI)
	if m.opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(m.opts.MaxPoolSize)
	}
	if m.opts.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(m.opts.MinPoolSize)
	}
	if m.opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(m.opts.Timeout)
	}
	if m.opts.Username != "" && m.opts.Password != "" {
		auth := options.Credential{
			Username:   m.opts.Username,
			Password:   m.opts.Password,
			AuthSource: m.opts.AuthDatabase,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = m.opts.Database
		}
		clientOpts.SetAuth(auth)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return &MongoSourceError{Op: "connect", Err: err}
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return &MongoSourceError{Op: "ping", Err: err}
	}

	m.client = client
	m.collection = client.Database(m.opts.Database).Collection(m.opts.Collection)
	m.connected = true

	return nil
}

// windowFilter merges the configured filter with the incremental window
// range predicate.
func (m *MongoSource) windowFilter() bson.M {
	filter := bson.M{}
	for k, v := range m.opts.Filter {
		filter[k] = v
	}
	if !m.opts.Window.IsZero() && m.opts.WatermarkColumn != "" {
		filter[m.opts.WatermarkColumn] = bson.M{
			"$gte": m.opts.Window.FromTS,
			"$lt":  m.opts.Window.UntilTS,
		}
	}
	return filter
}

func (m *MongoSource) initCursor(ctx context.Context) error {
	findOpts := options.Find()
	if m.opts.BatchSize > 0 {
		findOpts.SetBatchSize(m.opts.BatchSize)
	}
	if len(m.opts.Sort) > 0 {
		findOpts.SetSort(m.opts.Sort)
	}

	cursor, err := m.collection.Find(ctx, m.windowFilter(), findOpts)
	if err != nil {
		return err
	}
	m.cursor = cursor
	return nil
}

// Read returns the next in-window document, or io.EOF once the cursor
// is exhausted.
func (m *MongoSource) Read(ctx context.Context) (core.Record, error) {
	if !m.connected {
		if err := m.Connect(ctx); err != nil {
			return nil, err
		}
	}

	if m.cursor == nil {
		if err := m.initCursor(ctx); err != nil {
			return nil, &MongoSourceError{Op: "init_cursor", Collection: m.opts.Collection, Err: err}
		}
	}

	select {
	case <-ctx.Done():
		return nil, &MongoSourceError{Op: "read", Collection: m.opts.Collection, Err: ctx.Err()}
	default:
	}

	if !m.cursor.Next(ctx) {
		if err := m.cursor.Err(); err != nil {
			return nil, &MongoSourceError{Op: "cursor_next", Collection: m.opts.Collection, Err: err}
		}
		return nil, io.EOF
	}

	var doc bson.M
	if err := m.cursor.Decode(&doc); err != nil {
		return nil, &MongoSourceError{Op: "decode", Collection: m.opts.Collection, Err: err}
	}

	return convertBSON(doc), nil
}

// Close releases the cursor and disconnects the client.
func (m *MongoSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if m.cursor != nil {
		if err := m.cursor.Close(ctx); err != nil {
			firstErr = err
		}
		m.cursor = nil
	}
	if m.client != nil {
		if err := m.client.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		m.client = nil
	}
	m.connected = false
	return firstErr
}

// convertBSON flattens driver-specific types into plain record values.
func convertBSON(doc bson.M) core.Record {
	record := make(core.Record, len(doc))
	for key, val := range doc {
		record[key] = convertBSONValue(val)
	}
	return record
}

func convertBSONValue(val interface{}) interface{} {
	switch t := val.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time()
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = convertBSONValue(v)
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[k] = convertBSONValue(v)
		}
		return out
	default:
		return val
	}
}
