package model

import (
	"fmt"
	"time"
)

// JobStatus represents the current state of a scraping job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusPaused     JobStatus = "paused"
)

// Terminal reports whether the status is an end state of a run.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Source identifies the business-data provider a job scrapes.
type Source string

const (
	SourceGoogleMaps Source = "google_maps"
	SourceInsee      Source = "insee"
	SourceLinkedIn   Source = "linkedin"
	SourceWebsite    Source = "website"
	SourceOther      Source = "other"
)

// LogLevel is the severity of a job log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// JobLog is one entry in a job's append-only log trail.
type JobLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// Frequency describes how often a scheduled job should repeat.
type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// Schedule holds a job's recurrence settings. Schedules are stored and
// served but not executed; runs are always operator-triggered.
type Schedule struct {
	Frequency      Frequency  `json:"frequency"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	CronExpression string     `json:"cron_expression,omitempty"`
}

// ScrapingJob is one configured, repeatable scraping request against a
// single source. It is mutated exclusively by the engine while running.
type ScrapingJob struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Owner         string            `json:"owner"`
	Source        Source            `json:"source"`
	SourceURL     string            `json:"source_url,omitempty"`
	SearchTerms   []string          `json:"search_terms"`
	Locations     []string          `json:"locations"`
	Filters       map[string]string `json:"filters,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty"`
	Schedule      *Schedule         `json:"schedule,omitempty"`
	Status        JobStatus         `json:"status"`
	Progress      int               `json:"progress"`
	Logs          []JobLog          `json:"logs"`
	Results       []Record          `json:"results"`
	ResultsCount  int               `json:"results_count"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// AppendLog adds a timestamped entry to the job's log trail.
func (j *ScrapingJob) AppendLog(level LogLevel, format string, args ...any) {
	j.Logs = append(j.Logs, JobLog{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
	})
}

// ErrorLogs returns the error-level entries of the log trail.
func (j *ScrapingJob) ErrorLogs() []JobLog {
	var out []JobLog
	for _, l := range j.Logs {
		if l.Level == LogLevelError {
			out = append(out, l)
		}
	}
	return out
}
