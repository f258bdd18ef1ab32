/*
 * Copyright (c) 2026, FleetMesh Authors.
 * All rights reserved.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package logging is a concrete common.Logger backed by a JSON-lines file
// sink. The sink is wrapped in rotate-safe-writer so an external log
// rotator (logrotate or equivalent) can move the file out from under a
// long-running process without the process needing to know.
package logging

import (
	"encoding/json"
	"sync"
	"time"

	rotate "github.com/Psiphon-Inc/rotate-safe-writer"

	"github.com/fleetmesh/dgramtransport/common"
	"github.com/fleetmesh/dgramtransport/common/errors"
)

// FileLogger writes newline-delimited JSON log entries to a rotation-safe
// file sink.
type FileLogger struct {
	writer *rotate.RotatableFileWriter
	mu     sync.Mutex
}

// NewFileLogger opens (creating if necessary) path for append and returns
// a common.Logger backed by it.
func NewFileLogger(path string) (*FileLogger, error) {
	w, err := rotate.NewRotatableFileWriter(path, 2, true, 0644)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &FileLogger{writer: w}, nil
}

func (l *FileLogger) Close() error {
	return l.writer.Close()
}

type entry struct {
	Timestamp string             `json:"timestamp"`
	Level     string             `json:"level"`
	Message   string             `json:"message"`
	Fields    common.LogFields   `json:"fields,omitempty"`
}

func (l *FileLogger) write(level, message string, fields common.LogFields) {
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}
	line, err := json.Marshal(e)
	if err != nil {
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write(line)
}

// WithTrace implements common.Logger.
func (l *FileLogger) WithTrace() common.LogTrace {
	return &fileTrace{logger: l}
}

// WithTraceFields implements common.Logger.
func (l *FileLogger) WithTraceFields(fields common.LogFields) common.LogTrace {
	return &fileTrace{logger: l, fields: fields}
}

// LogMetric implements common.Logger.
func (l *FileLogger) LogMetric(metric string, fields common.LogFields) {
	l.write("metric", metric, fields)
}

type fileTrace struct {
	logger *FileLogger
	fields common.LogFields
}

func joinArgs(args []interface{}) string {
	msg := ""
	for i, a := range args {
		if i > 0 {
			msg += " "
		}
		if s, ok := a.(string); ok {
			msg += s
		} else if err, ok := a.(error); ok {
			msg += err.Error()
		} else {
			b, _ := json.Marshal(a)
			msg += string(b)
		}
	}
	return msg
}

func (t *fileTrace) Debug(args ...interface{})   { t.logger.write("debug", joinArgs(args), t.fields) }
func (t *fileTrace) Info(args ...interface{})    { t.logger.write("info", joinArgs(args), t.fields) }
func (t *fileTrace) Warning(args ...interface{}) { t.logger.write("warning", joinArgs(args), t.fields) }
func (t *fileTrace) Error(args ...interface{})   { t.logger.write("error", joinArgs(args), t.fields) }
