package assistant

import (
	"net/http"
	"time"
)

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the interface for diagnostic logging.
// Compatible with hclog, slog wrappers, zap's sugared logger, and other
// structured loggers.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

// noopLogger discards all messages. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ProgressSink receives batch progress updates: a monotonically
// increasing fraction in [0,1] and a human-readable status message.
// Reporting is a side channel and never affects control flow.
type ProgressSink interface {
	Report(fraction float64, message string)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(fraction float64, message string)

// Report calls f.
func (f ProgressFunc) Report(fraction float64, message string) {
	f(fraction, message)
}

// noopProgress discards progress updates.
type noopProgress struct{}

func (noopProgress) Report(float64, string) {}

// PromptNormalizer canonicalizes trigger-word token formatting before
// it is stored as activation text. Supplied by the host application.
type PromptNormalizer interface {
	Normalize(prompt string) string
}

// DirResolver maps a model type to its filesystem root directory.
// The mapping belongs to the host application's configuration; the
// pipeline only consumes it.
type DirResolver interface {
	// Dir returns the root directory for a model type and whether the
	// type is configured at all.
	Dir(t ModelType) (string, bool)
}

// mapDirResolver is a DirResolver backed by a static map.
type mapDirResolver map[ModelType]string

func (m mapDirResolver) Dir(t ModelType) (string, bool) {
	dir, ok := m[t]
	return dir, ok
}

// SyncerOption configures a Syncer.
type SyncerOption func(*syncerConfig)

// syncerConfig holds configuration for Syncer construction.
type syncerConfig struct {
	// httpClient is used for all catalog requests.
	httpClient HTTPClient

	// logger receives diagnostic log messages.
	logger Logger

	// timeout bounds each catalog request.
	timeout time.Duration

	// resolver overrides the Config.ModelDirs mapping.
	resolver DirResolver

	// normalizer canonicalizes activation text. May be nil.
	normalizer PromptNormalizer

	// preferExtended makes the by-id description win over the by-hash one.
	preferExtended bool

	// keepHTML preserves HTML markup in stored descriptions.
	keepHTML bool
}

// newSyncerConfig returns a syncerConfig with default values.
func newSyncerConfig() *syncerConfig {
	return &syncerConfig{
		httpClient: http.DefaultClient,
		logger:     noopLogger{},
		timeout:    DefaultRequestTimeout,
	}
}

// WithHTTPClient sets a custom HTTP client for catalog requests.
// Useful for testing with mock servers or customizing transports.
// If not set, http.DefaultClient is used.
func WithHTTPClient(client HTTPClient) SyncerOption {
	return func(c *syncerConfig) {
		c.httpClient = client
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) SyncerOption {
	return func(c *syncerConfig) {
		c.logger = logger
	}
}

// WithRequestTimeout bounds each individual catalog request.
// Default is DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) SyncerOption {
	return func(c *syncerConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDirResolver supplies the model-type to directory mapping
// directly, bypassing Config.ModelDirs.
func WithDirResolver(r DirResolver) SyncerOption {
	return func(c *syncerConfig) {
		c.resolver = r
	}
}

// WithPromptNormalizer sets the collaborator that canonicalizes
// activation text after trigger words are joined.
func WithPromptNormalizer(n PromptNormalizer) SyncerOption {
	return func(c *syncerConfig) {
		c.normalizer = n
	}
}

// WithPreferExtendedDescription makes the by-id extended description
// override the by-hash description when both are present. By default
// the extended lookup only fills a missing description.
func WithPreferExtendedDescription() SyncerOption {
	return func(c *syncerConfig) {
		c.preferExtended = true
	}
}

// WithHTMLDescriptions stores catalog descriptions with their HTML
// markup intact instead of stripping to plain text.
func WithHTMLDescriptions() SyncerOption {
	return func(c *syncerConfig) {
		c.keepHTML = true
	}
}

// UpdateOption configures one batch operation.
type UpdateOption func(*updateConfig)

// updateConfig holds configuration for a single batch run.
type updateConfig struct {
	// overwrite includes files that already have a sidecar (or preview,
	// for the image operation).
	overwrite bool

	// recalculate forces the content hash to be recomputed.
	recalculate bool

	// progress receives batch progress updates.
	progress ProgressSink
}

// newUpdateConfig applies options over defaults.
func newUpdateConfig(opts []UpdateOption) *updateConfig {
	cfg := &updateConfig{progress: noopProgress{}}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithOverwrite processes files even when the target artifact
// (sidecar or preview) already exists.
func WithOverwrite() UpdateOption {
	return func(c *updateConfig) {
		c.overwrite = true
	}
}

// WithRecalculateHash recomputes content hashes even when the sidecar
// already carries one.
func WithRecalculateHash() UpdateOption {
	return func(c *updateConfig) {
		c.recalculate = true
	}
}

// WithProgress sets the sink for batch progress updates.
// The sink is invoked at batch start, around each file, and at
// completion.
func WithProgress(sink ProgressSink) UpdateOption {
	return func(c *updateConfig) {
		if sink != nil {
			c.progress = sink
		}
	}
}
