// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNew_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Service: "fit", Output: &buf})
	require.NoError(t, err)
	defer l.Close()

	l.Info("run started", slog.Int("walkers", 32))
	l.Debug("filtered out")

	out := buf.String()
	assert.Contains(t, out, "run started")
	assert.Contains(t, out, "walkers=32")
	assert.Contains(t, out, "service=fit")
	assert.NotContains(t, out, "filtered out")
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", LogDir: dir, Service: "fit", Output: &buf})
	require.NoError(t, err)

	l.Info("checkpoint saved", slog.Int("iteration", 500))
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "fit_"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".log"))

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &record))
	assert.Equal(t, "checkpoint saved", record["msg"])
	assert.Equal(t, float64(500), record["iteration"])
	assert.Equal(t, "fit", record["service"])

	// Console still receives the same record.
	assert.Contains(t, buf.String(), "checkpoint saved")
}

func TestNew_CreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	l, err := New(Config{LogDir: dir, Output: &bytes.Buffer{}})
	require.NoError(t, err)
	defer l.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDefault_NeverNil(t *testing.T) {
	l := Default()
	require.NotNil(t, l)
	assert.NoError(t, l.Close())
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	l, err := New(Config{Output: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close(), "double close is harmless")
}
