package assistant

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// syncer is the concrete implementation of the Syncer interface.
type syncer struct {
	// store handles sidecar and preview persistence.
	store sidecarStore

	// catalog handles remote catalog communication.
	catalog *catalogClient

	// resolver maps model types to filesystem roots.
	resolver DirResolver

	// extensions are the model file extensions to discover.
	extensions []string

	// normalizer canonicalizes activation text. May be nil.
	normalizer PromptNormalizer

	// preferExtended makes the by-id description win over the by-hash one.
	preferExtended bool

	// keepHTML preserves HTML markup in stored descriptions.
	keepHTML bool

	// logger receives diagnostic messages.
	logger Logger
}

// batchTally aggregates per-file outcomes for the completion log line.
type batchTally struct {
	updated int
	skipped int
	failed  int
}

// UpdateMetadata reconciles sidecar metadata for every discovered model
// file of the given types. Each file is a hard isolation boundary: a
// failure is logged and excluded from the run's success count, and the
// batch always reaches its terminal state.
func (s *syncer) UpdateMetadata(ctx context.Context, types []ModelType, opts ...UpdateOption) error {
	cfg := newUpdateConfig(opts)

	files, done := s.collectCandidates(types, cfg, s.store.hasSidecar, "metadata")
	if done {
		return nil
	}

	var tally batchTally
	total := len(files)
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := filepath.Base(path)
		cfg.progress.Report(float64(i)/float64(total), "updating "+base)

		desc, err := s.store.loadOrCreate(path, cfg.recalculate)
		if err != nil {
			s.logger.Error("building descriptor", "file", base, "error", err)
			tally.failed++
			continue
		}

		rec, ok := s.catalog.fetchByHash(ctx, desc.Metadata.Hash)
		if !ok {
			s.logger.Warn("no catalog metadata for model", "file", base, "hash", shortHash(desc.Metadata.Hash))
			tally.skipped++
			continue
		}

		mergeCatalogRecord(&desc.Metadata, rec, s.normalizer)
		mergeDescription(&desc.Metadata, s.selectDescription(ctx, rec), s.keepHTML)

		if err := s.store.persist(desc); err != nil {
			s.logger.Error("writing sidecar", "file", base, "error", err)
			tally.failed++
			continue
		}

		s.logger.Info("updated metadata", "file", base)
		tally.updated++
		cfg.progress.Report(float64(i+1)/float64(total), "updated "+base)
	}

	s.finish(cfg.progress, "metadata", tally)
	return nil
}

// UpdatePreviewImages downloads and stores the canonical preview image
// for every discovered model file of the given types. Same discovery,
// filtering and isolation structure as UpdateMetadata, keyed on preview
// presence instead of sidecar presence.
func (s *syncer) UpdatePreviewImages(ctx context.Context, types []ModelType, opts ...UpdateOption) error {
	cfg := newUpdateConfig(opts)

	files, done := s.collectCandidates(types, cfg, s.store.hasPreview, "preview images")
	if done {
		return nil
	}

	var tally batchTally
	total := len(files)
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := filepath.Base(path)
		cfg.progress.Report(float64(i)/float64(total), "fetching preview for "+base)

		desc, err := s.store.loadOrCreate(path, cfg.recalculate)
		if err != nil {
			s.logger.Error("building descriptor", "file", base, "error", err)
			tally.failed++
			continue
		}

		rec, ok := s.catalog.fetchByHash(ctx, desc.Metadata.Hash)
		if !ok || len(rec.Images) == 0 {
			s.logger.Warn("no preview available in catalog", "file", base)
			tally.skipped++
			continue
		}

		img, ok := s.catalog.fetchImage(ctx, rec.Images[0].URL)
		if !ok {
			s.logger.Warn("failed to retrieve preview image", "file", base)
			tally.failed++
			continue
		}

		if err := s.store.writePreview(path, img); err != nil {
			s.logger.Error("writing preview image", "file", base, "error", err)
			tally.failed++
			continue
		}

		s.logger.Info("updated preview image", "file", base)
		tally.updated++
		cfg.progress.Report(float64(i+1)/float64(total), "updated "+base)
	}

	s.finish(cfg.progress, "preview images", tally)
	return nil
}

// ListModels returns the discovered model files for the given types
// together with their sidecar and preview presence.
func (s *syncer) ListModels(ctx context.Context, types []ModelType) ([]ModelStatus, error) {
	statuses := []ModelStatus{}
	for _, t := range types {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir, ok := s.resolver.Dir(t)
		if !ok || dir == "" {
			s.logger.Warn("unknown or unconfigured model type", "type", string(t))
			continue
		}
		files, err := findModelFiles(dir, s.extensions)
		if err != nil {
			s.logger.Warn("scanning model directory", "dir", dir, "error", err)
			continue
		}
		for _, path := range files {
			statuses = append(statuses, ModelStatus{
				Path:       path,
				Type:       t,
				HasSidecar: s.store.hasSidecar(path),
				HasPreview: s.store.hasPreview(path),
			})
		}
	}
	return statuses, nil
}

// collectCandidates runs the shared discovery and overwrite-filter
// stages. The returned bool is true when the batch already reached a
// terminal state (nothing to do), which is a success, not an error.
func (s *syncer) collectCandidates(types []ModelType, cfg *updateConfig, exists func(string) bool, what string) ([]string, bool) {
	cfg.progress.Report(0, "discovering model files")

	files := s.discoverFiles(types)
	if len(files) == 0 {
		s.logger.Warn("no model files found, nothing to update")
		cfg.progress.Report(1, "done: no model files found")
		return nil, true
	}

	if !cfg.overwrite {
		kept := files[:0]
		for _, path := range files {
			if !exists(path) {
				kept = append(kept, path)
			}
		}
		files = kept
	}

	if len(files) == 0 {
		s.logger.Info(fmt.Sprintf("all models already have %s, nothing to update", what))
		cfg.progress.Report(1, "done: nothing to update")
		return nil, true
	}

	return files, false
}

// selectDescription picks the description text to merge for a record:
// the by-hash record's own text, or the best-effort by-id extended
// lookup depending on precedence configuration.
func (s *syncer) selectDescription(ctx context.Context, rec CatalogRecord) string {
	primary := rec.Description

	wantExtended := s.preferExtended || strings.TrimSpace(primary) == ""
	if !wantExtended || rec.ModelID == 0 {
		return primary
	}

	extended, ok := s.catalog.fetchDescriptionByID(ctx, rec.ModelID)
	if !ok || strings.TrimSpace(extended) == "" {
		return primary
	}
	return extended
}

// finish emits the terminal progress report and the aggregate summary.
func (s *syncer) finish(sink ProgressSink, what string, tally batchTally) {
	sink.Report(1, "done")
	s.logger.Info("finished updating "+what,
		"updated", tally.updated,
		"skipped", tally.skipped,
		"failed", tally.failed,
	)
}
