//go:build !integration

package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/dps-crimelog/internal/config"
)

// dailyLog is pdftotext -layout output for a log with three incidents.
const dailyLog = `                     Department of Public Safety - Daily Incident Log

Date Reported   Event #          Case #     Offense     Location          Disposition
01/05/24 10:12  24-01-05-00001   24-00123   THEFT       LEAVEY LIBRARY    Open
01/05/24 11:40  24-01-05-00002              VANDALISM   PARKING           Closed
01/05/24 13:05                              ALARM       TOWNSEND HALL     Closed
`

// fakePdfToText writes a script that prints stdout whatever PDF it is given.
func fakePdfToText(t *testing.T, stdout string) string {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(out, []byte(stdout), 0644))

	bin := filepath.Join(dir, "pdftotext")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\ncat '"+out+"'\n"), 0755))
	return bin
}

// publisher serves a PDF for each listed path and 404 for everything else.
func publisher(t *testing.T, paths ...string) *httptest.Server {
	t.Helper()
	published := make(map[string]bool, len(paths))
	for _, p := range paths {
		published[p] = true
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !published[r.URL.Path] {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 daily log")) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL, pdftotext string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Archive: config.ArchiveConfig{Dir: dir, CSVFile: "logs.csv", JSONFile: "logs.json"},
		Source: config.SourceConfig{
			BaseURL:     baseURL,
			UserAgent:   "crimelog-test",
			TimeoutSecs: 5,
			RatePerSec:  100,
			Burst:       10,
			MaxBytes:    1 << 20,
		},
		Sync:    config.SyncConfig{EarliestDate: "2024-01-04", Workers: 4, Timezone: "UTC"},
		Extract: config.ExtractConfig{Provider: "local", PdfToTextPath: pdftotext, MinColumns: 4},
		RunLog:  config.RunLogConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "runs.db")},
		Metrics: config.MetricsConfig{Job: "crimelog"},
		Server:  config.ServerConfig{Port: 8080, AllowedOrigins: []string{"*"}},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}
