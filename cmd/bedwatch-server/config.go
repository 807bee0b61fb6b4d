package main

import (
	"time"

	"bedwatch-backend/internal/bedreport"
	"bedwatch-backend/internal/refresh"
	"bedwatch-backend/internal/snapshot"
)

type SourceConfig struct {
	Url            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// Retries defaults to 3 when unset, a negative value disables retrying.
	Retries          int    `json:"retries"`
	RetryWaitMs      int    `json:"retry_wait_ms"`
	RetryMaxWaitMs   int    `json:"retry_max_wait_ms"`
	UserAgent        string `json:"user_agent"`
	CloudflareBypass bool   `json:"cloudflare_bypass"`
}

func (c SourceConfig) FetcherOptions() bedreport.FetcherOptions {
	return bedreport.FetcherOptions{
		Timeout:          time.Duration(c.TimeoutSeconds) * time.Second,
		Retries:          c.Retries,
		RetryWait:        time.Duration(c.RetryWaitMs) * time.Millisecond,
		RetryMaxWait:     time.Duration(c.RetryMaxWaitMs) * time.Millisecond,
		UserAgent:        c.UserAgent,
		CloudflareBypass: c.CloudflareBypass,
	}
}

type ArchiveConfig struct {
	Driver string `json:"driver"`
	Dsn    string `json:"dsn"`
}

type Config struct {
	Port          int          `json:"port"`
	TriggerSecret string       `json:"trigger_secret"`
	Source        SourceConfig `json:"source"`
	// CycleTimeoutSeconds bounds a whole refresh cycle including retries.
	CycleTimeoutSeconds int                 `json:"cycle_timeout_seconds"`
	Schedule            string              `json:"schedule"`
	OutputFile          string              `json:"output_file"`
	Archive             ArchiveConfig       `json:"archive"`
	Alert               refresh.EmailConfig `json:"alert"`
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.Source.Url == "" {
		c.Source.Url = bedreport.DefaultUrl
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = 30
	}
	if c.Source.Retries == 0 {
		c.Source.Retries = 3
	}
	if c.Source.RetryWaitMs <= 0 {
		c.Source.RetryWaitMs = 500
	}
	if c.Source.RetryMaxWaitMs <= 0 {
		c.Source.RetryMaxWaitMs = 5000
	}
	if c.CycleTimeoutSeconds <= 0 {
		c.CycleTimeoutSeconds = 120
	}
	if c.OutputFile == "" {
		c.OutputFile = "hospital_data.json"
	}
	if c.Archive.Driver == "" && c.Archive.Dsn != "" {
		c.Archive.Driver = snapshot.DriverSqlite
	}
	return c
}

func (c Config) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutSeconds) * time.Second
}
