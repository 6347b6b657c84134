package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logWriter io.Writer
	output    io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogWriter redirects the JSON log stream. Commands that print content to
// stdout log to stderr.
func WithLogWriter(w io.Writer) Option {
	return func(a *application) {
		a.logWriter = w
	}
}

// WithOutput sets where Fetch writes page content.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.output = w
	}
}
