//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dps-crimelog/internal/archive"
	"github.com/sells-group/dps-crimelog/internal/model"
)

func TestShowStatus_NoArchive(t *testing.T) {
	cfg := testConfig(t, "", "pdftotext")

	var out bytes.Buffer
	require.NoError(t, showStatus(&out, cfg, time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)))

	text := out.String()
	assert.Contains(t, text, "logs.csv (missing)")
	assert.Contains(t, text, "logs.json (missing)")
	assert.Contains(t, text, "Records: 0")
	assert.Contains(t, text, "Latest:  none")
	assert.Contains(t, text, "Next:    2024-01-04..2024-01-06 (3 days)")
}

func TestShowStatus_ExistingArchive(t *testing.T) {
	cfg := testConfig(t, "", "pdftotext")
	require.NoError(t, archive.NewStore(cfg.Archive).Save([]model.Record{
		{DateReported: "01/05/24 10:12", EventID: "E1"},
		{DateReported: "01/03/24 08:00", EventID: "E0"},
	}))

	st, err := loadStatus(cfg, time.Date(2024, 1, 8, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, st.CSVFound)
	assert.True(t, st.JSONFound)
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), st.Latest)
	assert.Equal(t, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), st.NextStart)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), st.NextEnd)
	assert.Equal(t, 3, st.NextDays)
	assert.False(t, st.UpToDate)
}

func TestShowStatus_UpToDate(t *testing.T) {
	cfg := testConfig(t, "", "pdftotext")
	require.NoError(t, archive.NewStore(cfg.Archive).Save([]model.Record{
		{DateReported: "01/06/24 10:12", EventID: "E1"},
	}))

	var out bytes.Buffer
	require.NoError(t, showStatus(&out, cfg, time.Date(2024, 1, 6, 23, 0, 0, 0, time.UTC)))
	assert.Contains(t, out.String(), "Next:    up to date (today 2024-01-06)")
}

func TestShowStatus_UsesConfiguredTimezone(t *testing.T) {
	cfg := testConfig(t, "", "pdftotext")
	cfg.Sync.Timezone = "America/Los_Angeles"

	// 03:00 UTC on the 7th is still the 6th in Los Angeles.
	st, err := loadStatus(cfg, time.Date(2024, 1, 7, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), st.Today)
}
