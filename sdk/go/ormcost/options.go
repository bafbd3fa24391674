package ormcost

import "io"

// Option configures an Engine at creation time.
type Option func(*engineConfig)

type engineConfig struct {
	configPath      string
	config          *Config
	prefixes        []string
	captureParams   *bool
	maxStatementLen *int
	trailDir        *string
	diag            io.Writer
	onReport        func(*Report)
}

// Config is the full capture configuration. Zero values mean defaults.
type Config struct {
	// InternalPrefixes lists extra import path or file path prefixes whose
	// frames never count as query origins.
	InternalPrefixes []string
	// CaptureParams records query parameter values when true.
	CaptureParams bool
	// MaxStatementLen truncates recorded statements. Zero keeps the
	// default limit; WithMaxStatementLen(0) selects unlimited.
	MaxStatementLen int
	// TrailDir enables trail recording when set.
	TrailDir string
}

// WithConfigFile loads configuration from a YAML file. An empty path reads
// ~/.ormcost/config.yaml when it exists.
func WithConfigFile(path string) Option {
	return func(c *engineConfig) { c.configPath = path }
}

// WithConfig supplies the full configuration directly, skipping file loading.
func WithConfig(cfg Config) Option {
	return func(c *engineConfig) { c.config = &cfg }
}

// WithInternalPrefixes adds import path or file path prefixes to skip
// during origin resolution (e.g. your ORM layer's package).
func WithInternalPrefixes(prefixes ...string) Option {
	return func(c *engineConfig) { c.prefixes = append(c.prefixes, prefixes...) }
}

// WithCaptureParams toggles recording of query parameter values.
func WithCaptureParams(on bool) Option {
	return func(c *engineConfig) { c.captureParams = &on }
}

// WithMaxStatementLen caps recorded statement length. Zero means unlimited.
func WithMaxStatementLen(n int) Option {
	return func(c *engineConfig) { c.maxStatementLen = &n }
}

// WithTrailDir enables trail recording into the given directory.
func WithTrailDir(dir string) Option {
	return func(c *engineConfig) { c.trailDir = &dir }
}

// WithDiagnostics directs one-line capture diagnostics to w. The engine is
// silent by default.
func WithDiagnostics(w io.Writer) Option {
	return func(c *engineConfig) { c.diag = w }
}

// WithReportHandler sets the callback Middleware hands each request's
// report to.
func WithReportHandler(fn func(*Report)) Option {
	return func(c *engineConfig) { c.onReport = fn }
}
