package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpadsrunner/internal/core/domain"
)

const sampleManifest = `
date: 2024-06-01
jobs:
  - task: upload
    unit: A
    file: file1.dat
    report_type: senr
  - task: ods
    unit: B
    report_type: SDEM
  - task: download
    unit: "*"
  - task: report
    unit: A
    report: snapshot_1_17
    format: EXCELOPENXML
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	reqs, err := m.Requests()
	require.NoError(t, err)
	require.Len(t, reqs, 4)

	assert.Equal(t, domain.JobRequest{
		Task:   domain.TaskUpload,
		Unit:   "A",
		Params: domain.Params{FilePath: "file1.dat", ReportType: "SENR"},
	}, reqs[0])
	assert.Equal(t, domain.TaskExtractRequest, reqs[1].Task)
	assert.Equal(t, "*", reqs[2].Unit)
	assert.Equal(t, domain.TaskExtractDownload, reqs[2].Task)
	assert.Equal(t, "snapshot_1_17", reqs[3].Params.ReportURL)
	assert.Equal(t, "EXCELOPENXML", reqs[3].Params.Format)

	date, err := m.RunDate(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "06.01.2024", date.Format("01.02.2006"))
}

func TestParseManifest_Errors(t *testing.T) {
	_, err := ParseManifest([]byte("jobs: []"))
	assert.Error(t, err)

	m, err := ParseManifest([]byte("jobs:\n  - task: delete\n    unit: A\n"))
	require.NoError(t, err)
	_, err = m.Requests()
	assert.ErrorContains(t, err, "unknown task")

	m, err = ParseManifest([]byte("jobs:\n  - task: upload\n"))
	require.NoError(t, err)
	_, err = m.Requests()
	assert.ErrorContains(t, err, "unit is required")
}

func TestParseRunDate(t *testing.T) {
	now := time.Date(2024, time.June, 1, 15, 30, 0, 0, time.UTC)

	got, err := parseRunDate("", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseRunDate("07.01.2021", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, time.July, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseRunDate("tomorrow", now)
	assert.Error(t, err)
}

func TestUnitRequests(t *testing.T) {
	reqs, err := unitRequests(domain.TaskExtractDownload, []string{"A", "*"}, domain.Params{})
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "*", reqs[1].Unit)
	assert.Equal(t, domain.TaskExtractDownload, reqs[1].Task)

	_, err = unitRequests(domain.TaskUpload, nil, domain.Params{})
	assert.Error(t, err)
}
