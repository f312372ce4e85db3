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
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/etlrun/core"
)

// S3SourceError provides structured error information for S3 source operations.
type S3SourceError struct {
	Op  string
	Err error
}

func (e *S3SourceError) Error() string {
	return fmt.Sprintf("s3 source %s: %v", e.Op, e.Err)
}

func (e *S3SourceError) Unwrap() error {
	return e.Err
}

// S3SourceOptions configures the S3 source. The incremental window is
// enforced at the object level: only objects whose LastModified falls
// inside [Window.FromTS, Window.UntilTS) are pulled.
type S3SourceOptions struct {
	Bucket          string
	Prefix          string
	Suffix          string
	Region          string
	Profile         string
	Credentials     aws.Credentials
	EndpointURL     string
	ForcePathStyle  bool
	Window          Window
	WatermarkColumn string
}

// SourceOptionS3 represents a configuration function for S3Source.
type SourceOptionS3 func(*S3SourceOptions)

func WithS3Bucket(bucket string) SourceOptionS3 {
	return func(opts *S3SourceOptions) { opts.Bucket = bucket }
}

func WithS3Prefix(prefix string) SourceOptionS3 {
	return func(opts *S3SourceOptions) { opts.Prefix = prefix }
}

func WithS3Suffix(suffix string) SourceOptionS3 {
	return func(opts *S3SourceOptions) { opts.Suffix = suffix }
}

func WithS3Region(region string) SourceOptionS3 {
	return func(opts *S3SourceOptions) { opts.Region = region }
}

func WithS3Profile(profile string) SourceOptionS3 {
	return func(opts *S3SourceOptions) { opts.Profile = profile }
}

func WithS3Credentials(creds aws.Credentials) SourceOptionS3 {
	return func(opts *S3SourceOptions) { opts.Credentials = creds }
}

func WithS3Endpoint(endpoint string) SourceOptionS3 {
	return func(opts *S3SourceOptions) { opts.EndpointURL = endpoint }
}

func WithS3PathStyle(pathStyle bool) SourceOptionS3 {
	return func(opts *S3SourceOptions) { opts.ForcePathStyle = pathStyle }
}

// WithS3Window bounds the pull to objects last modified inside the
// incremental window, and optionally re-checks each record's watermark
// column after decode.
func WithS3Window(w Window, watermarkColumn string) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.Window = w
		opts.WatermarkColumn = watermarkColumn
	}
}

type s3Object struct {
	key          string
	lastModified int64
}

type recordReader interface {
	Read(ctx context.Context) (core.Record, error)
	Close() error
}

// S3Source streams records from the in-window objects of an S3 prefix,
// oldest object first. Object payloads are decoded by extension: CSV or
// line-delimited JSON.
type S3Source struct {
	client        *s3.Client
	objects       []s3Object
	currentIndex  int
	currentReader recordReader
	opts          S3SourceOptions
	mu            sync.Mutex
}

// NewS3Source lists the in-window objects and prepares the stream.
func NewS3Source(ctx context.Context, options ...SourceOptionS3) (*S3Source, error) {
	var opts S3SourceOptions
	for _, option := range options {
		option(&opts)
	}

	if opts.Bucket == "" {
		return nil, &S3SourceError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}

	cfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, &S3SourceError{Op: "create_aws_config", Err: err}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	source := &S3Source{
		client: client,
		opts:   opts,
	}

	if err := source.listObjects(ctx); err != nil {
		return nil, &S3SourceError{Op: "list_objects", Err: err}
	}

	return source, nil
}

// Read returns the next record across all in-window objects, or io.EOF.
func (s *S3Source) Read(ctx context.Context) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil, &S3SourceError{Op: "read", Err: ctx.Err()}
		default:
		}

		if s.currentReader == nil {
			if s.currentIndex >= len(s.objects) {
				return nil, io.EOF
			}
			if err := s.openObject(ctx, s.objects[s.currentIndex]); err != nil {
				return nil, err
			}
		}

		record, err := s.currentReader.Read(ctx)
		if err == io.EOF {
			s.closeCurrentReader()
			continue
		}
		if err != nil {
			return nil, &S3SourceError{Op: "read_record", Err: err}
		}

		if !s.opts.Window.Admit(record, s.opts.WatermarkColumn) {
			continue
		}
		return record, nil
	}
}

// Close releases the current object stream.
func (s *S3Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrentReader()
}

// Objects returns the keys selected for this window, in read order.
func (s *S3Source) Objects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, len(s.objects))
	for i, obj := range s.objects {
		keys[i] = obj.key
	}
	return keys
}

func loadAWSConfig(ctx context.Context, opts S3SourceOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}

func (s *S3Source) listObjects(ctx context.Context) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
	}
	if s.opts.Prefix != "" {
		input.Prefix = aws.String(s.opts.Prefix)
	}

	var selected []s3Object

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if s.opts.Suffix != "" && !strings.HasSuffix(*obj.Key, s.opts.Suffix) {
				continue
			}
			modified := obj.LastModified.UnixMilli()
			if !s.opts.Window.Contains(modified) {
				continue
			}
			selected = append(selected, s3Object{key: *obj.Key, lastModified: modified})
		}
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].lastModified < selected[j].lastModified
	})

	s.objects = selected
	return nil
}

func (s *S3Source) openObject(ctx context.Context, obj s3Object) error {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(obj.key),
	})
	if err != nil {
		return &S3SourceError{Op: "get_object", Err: fmt.Errorf("object %s: %w", obj.key, err)}
	}

	reader, err := s.readerForObject(result.Body, obj.key)
	if err != nil {
		result.Body.Close()
		return &S3SourceError{Op: "open_object", Err: fmt.Errorf("object %s: %w", obj.key, err)}
	}

	s.currentReader = reader
	return nil
}

func (s *S3Source) readerForObject(body io.ReadCloser, key string) (recordReader, error) {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".csv":
		return NewCSVSource(body, WithCSVHasHeaders(true))
	default:
		// Line-delimited JSON is the default payload format.
		return NewJSONSource(body), nil
	}
}

func (s *S3Source) closeCurrentReader() error {
	if s.currentReader == nil {
		return nil
	}
	err := s.currentReader.Close()
	s.currentReader = nil
	s.currentIndex++
	return err
}
