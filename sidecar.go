package assistant

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sidecar naming convention: for model.safetensors the metadata record
// lives at model.json and the preview image at model.preview.png.
const (
	sidecarExt = ".json"
	previewExt = ".preview.png"
)

// DefaultLockTimeout is the default timeout for acquiring file locks
// around sidecar and preview writes.
const DefaultLockTimeout = 30 * time.Second

// sidecarPath returns the metadata sidecar path for a model file.
func sidecarPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + sidecarExt
}

// previewPath returns the preview image path for a model file.
func previewPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + previewExt
}

// sidecarStore defines the sidecar persistence operations used by the
// reconciler. Implemented by *fileStore for production and by mock
// stores in tests; the seam keeps batch tests off the filesystem.
type sidecarStore interface {
	// loadOrCreate returns the descriptor for a model file, building it
	// if no sidecar exists and computing the content hash if it is
	// missing or recalculate is true. The descriptor is written back
	// immediately so the hash is never recomputed by a later step.
	loadOrCreate(modelPath string, recalculate bool) (ModelDescriptor, error)

	// persist serializes the descriptor's metadata to the sidecar path,
	// fully overwriting it.
	persist(desc ModelDescriptor) error

	// hasSidecar reports whether a metadata sidecar exists for the model.
	hasSidecar(modelPath string) bool

	// hasPreview reports whether a preview image exists for the model.
	hasPreview(modelPath string) bool

	// writePreview writes raw image bytes to the preview path,
	// overwriting any existing file.
	writePreview(modelPath string, img []byte) error
}

// fileStore implements sidecarStore on the local filesystem.
type fileStore struct {
	// cache holds recently built descriptors, bounded in size and time.
	cache *descriptorCache

	// hashFn computes a file's content hash. Swappable for tests.
	hashFn func(path string) (string, error)

	// logger receives diagnostic messages.
	logger Logger

	// lockTimeout is the maximum duration to wait for file lock acquisition.
	lockTimeout time.Duration
}

var _ sidecarStore = (*fileStore)(nil)

// newFileStore creates a sidecar store with a fresh descriptor cache.
func newFileStore(logger Logger) *fileStore {
	return &fileStore{
		cache:       newDescriptorCache(descriptorCacheSize, descriptorCacheTTL),
		hashFn:      hashFile,
		logger:      logger,
		lockTimeout: DefaultLockTimeout,
	}
}

// loadOrCreate returns the descriptor for modelPath. The short-lived
// cache is consulted only when recalculate is false; a recompute
// request must never be served a stale hit.
func (s *fileStore) loadOrCreate(modelPath string, recalculate bool) (ModelDescriptor, error) {
	if !recalculate {
		if desc, ok := s.cache.get(modelPath); ok {
			return desc, nil
		}
	}

	scPath := sidecarPath(modelPath)

	meta := newMetadataDescriptor()
	data, err := os.ReadFile(scPath)
	switch {
	case os.IsNotExist(err):
		// No sidecar yet, start from defaults.
	case err != nil:
		return ModelDescriptor{}, fmt.Errorf("%w: reading sidecar %s: %v", ErrStorage, scPath, err)
	default:
		meta, err = parseMetadataDescriptor(data)
		if err != nil {
			return ModelDescriptor{}, err
		}
	}

	if meta.Hash == "" || recalculate {
		hash, err := s.hashFn(modelPath)
		if err != nil {
			return ModelDescriptor{}, err
		}
		meta.Hash = hash
		s.logger.Debug("computed content hash", "file", filepath.Base(modelPath), "hash", hash[:12])
	}

	desc := ModelDescriptor{Metadata: meta, Path: modelPath}

	// Write the sidecar back immediately so the hash is never
	// recomputed in this or a later run unless explicitly forced.
	if err := s.persist(desc); err != nil {
		return ModelDescriptor{}, err
	}

	s.cache.put(modelPath, desc)
	return desc, nil
}

// persist writes the descriptor's metadata to its sidecar path under a
// cross-process file lock, using write-then-rename for atomicity.
func (s *fileStore) persist(desc ModelDescriptor) error {
	data, err := encodeMetadataDescriptor(desc.Metadata)
	if err != nil {
		return err
	}
	return s.lockedWrite(sidecarPath(desc.Path), data)
}

// hasSidecar reports whether a metadata sidecar exists for the model.
func (s *fileStore) hasSidecar(modelPath string) bool {
	_, err := os.Stat(sidecarPath(modelPath))
	return err == nil
}

// hasPreview reports whether a preview image exists for the model.
func (s *fileStore) hasPreview(modelPath string) bool {
	_, err := os.Stat(previewPath(modelPath))
	return err == nil
}

// writePreview writes raw image bytes to the preview path. The bytes
// are stored as delivered by the catalog, without re-encoding.
func (s *fileStore) writePreview(modelPath string, img []byte) error {
	return s.lockedWrite(previewPath(modelPath), img)
}

// lockedWrite writes data to path atomically while holding a
// cross-process lock on path. Two batch runs must not write the same
// sidecar or preview concurrently.
func (s *fileStore) lockedWrite(path string, data []byte) error {
	lock, err := newFileLock(path+".lock", s.lockTimeout)
	if err != nil {
		return fmt.Errorf("%w: creating lock for %s: %v", ErrStorage, path, err)
	}
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("%w: locking %s: %v", ErrStorage, path, err)
	}
	defer lock.Unlock()

	return atomicWrite(path, data)
}

// atomicWrite writes data to path using write-then-rename.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrStorage, path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // cleanup on failure
		return fmt.Errorf("%w: renaming %s: %v", ErrStorage, path, err)
	}
	return nil
}
