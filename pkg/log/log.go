// Copyright 2018-2019 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package log provides a per-package logger registry on top of zerolog.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.CallerSkipFrameCount = 3
}

type traceKeyType struct{}

var traceKey = traceKeyType{}

// WithTrace attaches a trace id to a context for later retrieval by the logger.
func WithTrace(ctx context.Context, trace string) context.Context {
	return context.WithValue(ctx, traceKey, trace)
}

var pkgs = []string{}
var enabledLoggers = map[string]*zerolog.Logger{}

// Out is the log output writer.
var Out io.Writer = os.Stderr

// Mode dev prints in console format and prod in json output.
var Mode = "dev"

// Logger is the main logging element, scoped to a single package name.
type Logger struct {
	pkg string
}

// ListRegisteredPackages returns the name of the packages a logger has been registered for.
func ListRegisteredPackages() []string {
	return pkgs
}

// ListEnabledPackages returns a list with the name of log-enabled packages.
func ListEnabledPackages() []string {
	out := []string{}
	for k := range enabledLoggers {
		out = append(out, k)
	}
	return out
}

// EnableAll enables all registered loggers.
func EnableAll() error {
	for _, v := range pkgs {
		if err := Enable(v); err != nil {
			return err
		}
	}
	return nil
}

// Enable enables a specific logger by its package name.
func Enable(pkg string) error {
	enabledLoggers[pkg] = create(pkg)
	return nil
}

// Disable a specific logger by its package name.
func Disable(pkg string) {
	nop := zerolog.Nop()
	enabledLoggers[pkg] = &nop
}

func create(pkg string) *zerolog.Logger {
	pid := os.Getpid()
	return createLog(pkg, pid)
}

// New returns a new Logger scoped to pkg, disabled (nop) until Enable is called.
func New(pkg string) *Logger {
	pkgs = append(pkgs, pkg)
	nop := zerolog.Nop()
	enabledLoggers[pkg] = &nop
	return &Logger{pkg: pkg}
}

func find(pkg string) *zerolog.Logger {
	return enabledLoggers[pkg]
}

// Builder allows constructing a log event field-by-field before emitting it.
type Builder struct {
	event *zerolog.Event
}

// Str adds a string field to the builder.
func (b *Builder) Str(key, val string) *Builder {
	b.event = b.event.Str(key, val)
	return b
}

// Int adds an int field to the builder.
func (b *Builder) Int(key string, val int) *Builder {
	b.event = b.event.Int(key, val)
	return b
}

// Msg writes the event with any fields stored so far.
func (b *Builder) Msg(ctx context.Context, msg string) {
	b.event.Str("trace", getTrace(ctx)).Msg(msg)
}

// Build allocates a new info-level Builder.
func (l *Logger) Build() *Builder {
	return &Builder{event: enabledLoggers[l.pkg].Info()}
}

// BuildError allocates a new error-level Builder.
func (l *Logger) BuildError() *Builder {
	return &Builder{event: enabledLoggers[l.pkg].Error()}
}

// Println prints at info level.
func (l *Logger) Println(ctx context.Context, args ...interface{}) {
	find(l.pkg).Info().Str("trace", getTrace(ctx)).Msg(fmt.Sprint(args...))
}

// Printf prints at info level.
func (l *Logger) Printf(ctx context.Context, format string, args ...interface{}) {
	find(l.pkg).Info().Str("trace", getTrace(ctx)).Msg(fmt.Sprintf(format, args...))
}

// Debugf prints at debug level.
func (l *Logger) Debugf(ctx context.Context, format string, args ...interface{}) {
	find(l.pkg).Debug().Str("trace", getTrace(ctx)).Msg(fmt.Sprintf(format, args...))
}

// Warnf prints at warn level.
func (l *Logger) Warnf(ctx context.Context, format string, args ...interface{}) {
	find(l.pkg).Warn().Str("trace", getTrace(ctx)).Msg(fmt.Sprintf(format, args...))
}

// Error prints at error level.
func (l *Logger) Error(ctx context.Context, err error) {
	find(l.pkg).Error().Str("trace", getTrace(ctx)).Msg(err.Error())
}

// Panic prints at error level together with a captured stack trace.
func (l *Logger) Panic(ctx context.Context, reason string) {
	stack := debug.Stack()
	msg := reason + "\n" + string(stack)
	find(l.pkg).Error().Str("trace", getTrace(ctx)).Bool("panic", true).Msg(msg)
}

func createLog(pkg string, pid int) *zerolog.Logger {
	zlog := zerolog.New(os.Stderr).With().Str("pkg", pkg).Int("pid", pid).Timestamp().Caller().Logger()
	if Mode == "" || Mode == "dev" {
		zlog = zlog.Output(zerolog.ConsoleWriter{Out: Out})
	} else {
		zlog = zlog.Output(Out)
	}
	return &zlog
}

func getTrace(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey).(string); ok {
		return v
	}
	return ""
}
