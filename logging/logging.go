// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging builds the service's slog loggers.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName is attached to every record as the "service" attribute.
const ServiceName = "doajsync"

var (
	// ErrInvalidLevel is returned for an unknown level name.
	ErrInvalidLevel = errors.New("invalid log level")

	// ErrInvalidFormat is returned for an unknown output format.
	ErrInvalidFormat = errors.New("invalid log format")
)

// ParseLevel maps debug, info, warn or error (any case) to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w %q: must be one of debug, info, warn, error", ErrInvalidLevel, name)
	}
}

// New returns a logger writing to w. format is "text" or "json".
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	handler, err := newHandler(w, lvl, format)
	if err != nil {
		return nil, err
	}
	return slog.New(handler).With("service", ServiceName), nil
}

func newHandler(w io.Writer, level slog.Leveler, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("%w %q: must be text or json", ErrInvalidFormat, format)
	}
}

// Files names the optional log files next to stderr.
type Files struct {
	Combined string // Every record at the configured level
	Errors   string // Error records only
}

// Open builds a logger writing to stderr and appending to the files named in
// files. The returned closer releases the files.
func Open(stderr io.Writer, level, format string, files Files) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	var closers multiCloser
	fail := func(err error) (*slog.Logger, io.Closer, error) {
		_ = closers.Close()
		return nil, nil, err
	}

	out := stderr
	if files.Combined != "" {
		file, err := openFile(files.Combined)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, file)
		out = io.MultiWriter(stderr, file)
	}

	handler, err := newHandler(out, lvl, format)
	if err != nil {
		return fail(err)
	}

	if files.Errors != "" {
		file, err := openFile(files.Errors)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, file)
		errorHandler, err := newHandler(file, slog.LevelError, format)
		if err != nil {
			return fail(err)
		}
		handler = fanout{handler, errorHandler}
	}

	return slog.New(handler).With("service", ServiceName), closers, nil
}

func openFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// fanout passes each record to every handler enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
