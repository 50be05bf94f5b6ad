package assistant

import (
	"context"
	"errors"
)

// Syncer reconciles local model files against the remote catalog.
// Batch operations are sequential over the discovered file list and
// safe to re-invoke: the sidecar cache and overwrite filters make a
// rerun skip work that already succeeded.
// For CLI integration, use NewCommand instead.
type Syncer interface {
	// UpdateMetadata updates sidecar metadata for all model files of
	// the given types. Individual file failures are logged and skipped;
	// the returned error is non-nil only for cancellation.
	UpdateMetadata(ctx context.Context, types []ModelType, opts ...UpdateOption) error

	// UpdatePreviewImages downloads preview images for all model files
	// of the given types. Same failure contract as UpdateMetadata.
	UpdatePreviewImages(ctx context.Context, types []ModelType, opts ...UpdateOption) error

	// ListModels returns the discovered model files of the given types
	// with their sidecar and preview presence.
	ListModels(ctx context.Context, types []ModelType) ([]ModelStatus, error)
}

// Ensure syncer implements Syncer interface.
var _ Syncer = (*syncer)(nil)

// NewSyncer creates a new Syncer with the given configuration.
// Returns an error if no model directory mapping is available, either
// via Config.ModelDirs or WithDirResolver.
func NewSyncer(cfg Config, opts ...SyncerOption) (Syncer, error) {
	scfg := newSyncerConfig()
	for _, opt := range opts {
		opt(scfg)
	}

	resolver := scfg.resolver
	if resolver == nil {
		if len(cfg.ModelDirs) == 0 {
			return nil, errors.New("assistant: model directories are required")
		}
		resolver = mapDirResolver(cfg.ModelDirs)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	extensions := cfg.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	return &syncer{
		store:          newFileStore(scfg.logger),
		catalog:        newCatalogClient(baseURL, cfg.APIToken, scfg.httpClient, scfg.timeout, scfg.logger),
		resolver:       resolver,
		extensions:     extensions,
		normalizer:     scfg.normalizer,
		preferExtended: scfg.preferExtended,
		keepHTML:       scfg.keepHTML,
		logger:         scfg.logger,
	}, nil
}
