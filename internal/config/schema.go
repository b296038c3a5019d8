// Package config loads and validates bombard's execution configuration,
// request collections and environment files.
package config

import (
	"time"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultReportFile  = "report.csv"
	DefaultThreadCount = 1
	DefaultThreadDelay = time.Millisecond
	DefaultTimeout     = 30 * time.Second
	DefaultLogFile     = "bombard.log"
)

// Config is the execution configuration file.
type Config struct {
	// EnvironmentFile seeds the variables (flat map or Postman environment)
	EnvironmentFile string `json:"environment_file,omitempty" yaml:"environment_file,omitempty"`

	// CollectionFile holds the request templates
	CollectionFile string `json:"collection_file" yaml:"collection_file"`

	// ReportFile receives one CSV line per executed request
	ReportFile string `json:"report_file,omitempty" yaml:"report_file,omitempty"`

	// Variables are inline seed values; they override the environment file
	Variables StringMap `json:"variables,omitempty" yaml:"variables,omitempty"`

	ThreadCount   int     `json:"thread_count,omitempty" yaml:"thread_count,omitempty"`
	Iterations    int     `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	ExecutionTime Seconds `json:"execution_time,omitempty" yaml:"execution_time,omitempty"`
	RampUpTime    Seconds `json:"rampup_time" yaml:"rampup_time"`

	// ThreadDelay is the pause after every request. Nil means the default.
	ThreadDelay *Millis `json:"thread_delay,omitempty" yaml:"thread_delay,omitempty"`

	HandleCookies   bool `json:"handle_cookies,omitempty" yaml:"handle_cookies,omitempty"`
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`

	LogToFile bool   `json:"log_to_file,omitempty" yaml:"log_to_file,omitempty"`
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// Timeout bounds a single request attempt
	Timeout  Seconds `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryMax int     `json:"retry_max,omitempty" yaml:"retry_max,omitempty"`

	// MetricsAddr, when set, serves Prometheus metrics during the run
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`

	// SyncReport fsyncs the report after every line
	SyncReport bool `json:"sync_report,omitempty" yaml:"sync_report,omitempty"`
}

// ExecutionConfig is the immutable run shape shared by the scheduler and
// every worker.
type ExecutionConfig struct {
	ThreadCount     int
	Iterations      int
	ExecutionTime   time.Duration
	RampUpTime      time.Duration
	ThreadDelay     time.Duration
	ContinueOnError bool
	HandleCookies   bool
}

// IterationBound reports whether the run ends after a fixed number of
// passes. Iterations win over ExecutionTime when both are set.
func (e ExecutionConfig) IterationBound() bool {
	return e.Iterations > 0
}

// Stagger is the pause between two consecutive worker spawns.
func (e ExecutionConfig) Stagger() time.Duration {
	if e.ThreadCount <= 0 {
		return 0
	}
	return e.RampUpTime / time.Duration(e.ThreadCount)
}

// Warnings lists settings that are accepted but partly ignored.
func (e ExecutionConfig) Warnings() []string {
	var warnings []string
	if e.Iterations > 0 && e.ExecutionTime > 0 {
		warnings = append(warnings, "both execution_time and iterations are set; execution_time will be ignored")
	}
	return warnings
}

// Execution extracts the run shape from the file configuration.
func (c *Config) Execution() ExecutionConfig {
	delay := DefaultThreadDelay
	if c.ThreadDelay != nil {
		delay = c.ThreadDelay.Duration()
	}
	return ExecutionConfig{
		ThreadCount:     c.ThreadCount,
		Iterations:      c.Iterations,
		ExecutionTime:   c.ExecutionTime.Duration(),
		RampUpTime:      c.RampUpTime.Duration(),
		ThreadDelay:     delay,
		ContinueOnError: c.ContinueOnError,
		HandleCookies:   c.HandleCookies,
	}
}

// ApplyDefaults fills in unset optional fields.
func ApplyDefaults(c *Config) {
	if c.ReportFile == "" {
		c.ReportFile = DefaultReportFile
	}
	if c.ThreadCount == 0 {
		c.ThreadCount = DefaultThreadCount
	}
	if c.ThreadDelay == nil {
		d := Millis(DefaultThreadDelay)
		c.ThreadDelay = &d
	}
	if c.Timeout == 0 {
		c.Timeout = Seconds(DefaultTimeout)
	}
	if c.Variables == nil {
		c.Variables = StringMap{}
	}
}

// LogFile is where logs go when LogToFile is set: next to the report.
func (c *Config) LogFile() string {
	return joinDir(c.ReportFile, DefaultLogFile)
}
