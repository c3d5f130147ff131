package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"calpadsrunner/internal/core/domain"
)

// Manifest is a batch written as YAML:
//
//	date: 2024-06-01
//	jobs:
//	  - task: upload
//	    unit: KCCP
//	    file: senr.txt
//	    report_type: SENR
//	  - task: download
//	    unit: "*"
type Manifest struct {
	Date string        `yaml:"date"`
	Jobs []ManifestJob `yaml:"jobs"`
}

// ManifestJob is one job entry. Unit "*" runs the job for every registry unit.
type ManifestJob struct {
	Task       string `yaml:"task"`
	Unit       string `yaml:"unit"`
	File       string `yaml:"file"`
	ReportType string `yaml:"report_type"`
	ReportURL  string `yaml:"report"`
	Format     string `yaml:"format"`
}

var dateLayouts = []string{"2006-01-02", "01.02.2006", "01/02/2006"}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Jobs) == 0 {
		return nil, fmt.Errorf("manifest has no jobs")
	}
	return &m, nil
}

// Requests converts the entries to job requests.
func (m *Manifest) Requests() ([]domain.JobRequest, error) {
	reqs := make([]domain.JobRequest, 0, len(m.Jobs))
	for i, j := range m.Jobs {
		task, ok := domain.ParseTaskType(strings.ToLower(strings.TrimSpace(j.Task)))
		if !ok {
			return nil, fmt.Errorf("job %d: unknown task %q", i+1, j.Task)
		}
		if strings.TrimSpace(j.Unit) == "" {
			return nil, fmt.Errorf("job %d: unit is required", i+1)
		}
		reqs = append(reqs, domain.JobRequest{
			Task: task,
			Unit: j.Unit,
			Params: domain.Params{
				FilePath:   j.File,
				ReportType: strings.ToUpper(j.ReportType),
				ReportURL:  j.ReportURL,
				Format:     j.Format,
			},
		})
	}
	return reqs, nil
}

// RunDate returns the manifest date, or today when none is set. The date is
// fixed for the whole batch.
func (m *Manifest) RunDate(now time.Time) (time.Time, error) {
	return parseRunDate(m.Date, now)
}

func parseRunDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		y, mo, d := now.Date()
		return time.Date(y, mo, d, 0, 0, 0, 0, now.Location()), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or MM.DD.YYYY", s)
}
