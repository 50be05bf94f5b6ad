package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catalogFixture backs a fake catalog server for batch tests.
type catalogFixture struct {
	mu sync.Mutex

	// records maps content hash to a model-version JSON body.
	records map[string]string

	// descriptions maps model id to a /models/{id} description.
	descriptions map[string]string

	// images maps URL path to raw bytes.
	images map[string][]byte

	// requests records every request path received.
	requests []string
}

func newCatalogFixture() *catalogFixture {
	return &catalogFixture{
		records:      make(map[string]string),
		descriptions: make(map[string]string),
		images:       make(map[string][]byte),
	}
}

func (f *catalogFixture) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.URL.Path)
		f.mu.Unlock()

		switch {
		case strings.HasPrefix(r.URL.Path, "/model-versions/by-hash/"):
			hash := strings.TrimPrefix(r.URL.Path, "/model-versions/by-hash/")
			f.mu.Lock()
			body, ok := f.records[hash]
			f.mu.Unlock()
			if !ok {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			w.Write([]byte(body))

		case strings.HasPrefix(r.URL.Path, "/models/"):
			id := strings.TrimPrefix(r.URL.Path, "/models/")
			f.mu.Lock()
			desc, ok := f.descriptions[id]
			f.mu.Unlock()
			if !ok {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"description": desc})

		case strings.HasPrefix(r.URL.Path, "/images/"):
			f.mu.Lock()
			img, ok := f.images[r.URL.Path]
			f.mu.Unlock()
			if !ok {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			w.Write(img)

		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *catalogFixture) requestPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// addRecord registers a by-hash record for a model file's content.
func (f *catalogFixture) addRecord(content []byte, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[contentHash(content)] = body
}

func newTestSyncer(t *testing.T, dir string, baseURL string, opts ...SyncerOption) Syncer {
	t.Helper()
	cfg := Config{
		BaseURL:   baseURL,
		ModelDirs: map[ModelType]string{ModelTypeLora: dir},
	}
	sync, err := NewSyncer(cfg, opts...)
	require.NoError(t, err)
	return sync
}

func TestUpdateMetadataEndToEnd(t *testing.T) {
	dir := t.TempDir()
	content := []byte("lora weights")
	model := writeModelFile(t, dir, "style.safetensors", content)

	fixture := newCatalogFixture()
	srv := fixture.server(t)
	fixture.addRecord(content, fmt.Sprintf(`{
		"id": 1234,
		"modelId": 5678,
		"baseModel": "SDXL1.0",
		"trainedWords": ["a", "b"],
		"images": [{"url": %q}]
	}`, srv.URL+"/images/preview.png"))
	fixture.images["/images/preview.png"] = []byte("png bytes")

	sync := newTestSyncer(t, dir, srv.URL)

	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}))

	data, err := os.ReadFile(sidecarPath(model))
	require.NoError(t, err)
	meta, err := parseMetadataDescriptor(data)
	require.NoError(t, err)

	assert.Equal(t, contentHash(content), meta.Hash)
	require.NotNil(t, meta.CatalogID)
	assert.Equal(t, int64(1234), *meta.CatalogID)
	require.NotNil(t, meta.CatalogModelID)
	assert.Equal(t, int64(5678), *meta.CatalogModelID)
	assert.Equal(t, "SDXL1.0", meta.BaseVersion)
	assert.Equal(t, "a, b", meta.ActivationText)

	// A subsequent preview run stores the bytes fetched from the
	// record's first image URL.
	require.NoError(t, sync.UpdatePreviewImages(context.Background(), []ModelType{ModelTypeLora}))

	img, err := os.ReadFile(previewPath(model))
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), img)
}

func TestUpdateMetadataServerError(t *testing.T) {
	dir := t.TempDir()
	content := []byte("weights")
	model := writeModelFile(t, dir, "style.safetensors", content)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sync := newTestSyncer(t, dir, srv.URL)

	// The batch must not surface an error; the sidecar is still written
	// with the hash so it is never recomputed.
	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}))

	data, err := os.ReadFile(sidecarPath(model))
	require.NoError(t, err)
	meta, err := parseMetadataDescriptor(data)
	require.NoError(t, err)

	assert.Equal(t, contentHash(content), meta.Hash)
	assert.Nil(t, meta.CatalogID)
	assert.Equal(t, DefaultBaseVersion, meta.BaseVersion)
}

func TestUpdateMetadataBatchIsolation(t *testing.T) {
	dir := t.TempDir()

	contents := map[string][]byte{
		"a.safetensors": []byte("model a"),
		"b.safetensors": []byte("model b"),
		"c.safetensors": []byte("model c"),
	}
	for name, content := range contents {
		writeModelFile(t, dir, name, content)
	}

	fixture := newCatalogFixture()
	srv := fixture.server(t)
	// b has no catalog record: its lookup 404s and it is skipped.
	fixture.addRecord(contents["a.safetensors"], `{"id": 1, "modelId": 10, "baseModel": "SD 1.5"}`)
	fixture.addRecord(contents["c.safetensors"], `{"id": 3, "modelId": 30, "baseModel": "SD 1.5"}`)

	logger := &recordingLogger{}
	sync := newTestSyncer(t, dir, srv.URL, WithLogger(logger))

	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}))

	for name, wantID := range map[string]int64{"a.safetensors": 1, "c.safetensors": 3} {
		data, err := os.ReadFile(sidecarPath(dir + "/" + name))
		require.NoError(t, err)
		meta, err := parseMetadataDescriptor(data)
		require.NoError(t, err)
		require.NotNil(t, meta.CatalogID, "%s should be updated", name)
		assert.Equal(t, wantID, *meta.CatalogID)
	}

	data, err := os.ReadFile(sidecarPath(dir + "/b.safetensors"))
	require.NoError(t, err)
	meta, err := parseMetadataDescriptor(data)
	require.NoError(t, err)
	assert.Nil(t, meta.CatalogID, "b should be skipped, not updated")

	warned := false
	for _, entry := range logger.entries() {
		if strings.Contains(entry, "WARN") && strings.Contains(entry, "b.safetensors") {
			warned = true
		}
	}
	assert.True(t, warned, "skipping b must produce a warning")
}

func TestUpdateMetadataOverwriteFilter(t *testing.T) {
	dir := t.TempDir()
	model := writeModelFile(t, dir, "style.safetensors", []byte("weights"))
	require.NoError(t, os.WriteFile(sidecarPath(model), []byte(`{"hash": "h"}`), 0644))

	fixture := newCatalogFixture()
	srv := fixture.server(t)

	sync := newTestSyncer(t, dir, srv.URL)

	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}))

	// The file already has a sidecar and overwrite is off: it must be
	// excluded before any remote call is issued.
	assert.Empty(t, fixture.requestPaths())
}

func TestUpdateMetadataOverwriteProcessesExisting(t *testing.T) {
	dir := t.TempDir()
	content := []byte("weights")
	model := writeModelFile(t, dir, "style.safetensors", content)
	seed := []byte(`{"hash": "` + contentHash(content) + `", "notes": "mine"}`)
	require.NoError(t, os.WriteFile(sidecarPath(model), seed, 0644))

	fixture := newCatalogFixture()
	srv := fixture.server(t)
	fixture.addRecord(content, `{"id": 9, "modelId": 90, "baseModel": "Pony"}`)

	sync := newTestSyncer(t, dir, srv.URL)

	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}, WithOverwrite()))

	data, err := os.ReadFile(sidecarPath(model))
	require.NoError(t, err)
	meta, err := parseMetadataDescriptor(data)
	require.NoError(t, err)

	require.NotNil(t, meta.CatalogID)
	assert.Equal(t, int64(9), *meta.CatalogID)
	assert.Equal(t, "Other", meta.BaseVersion, "Pony collapses to Other")
	assert.Equal(t, "mine", meta.Notes, "user notes survive the merge")
}

func TestUpdateMetadataNoFiles(t *testing.T) {
	fixture := newCatalogFixture()
	srv := fixture.server(t)

	progress := &recordingProgress{}
	sync := newTestSyncer(t, t.TempDir(), srv.URL)

	err := sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}, WithProgress(progress))
	require.NoError(t, err)

	reports := progress.all()
	require.NotEmpty(t, reports)
	assert.Equal(t, float64(1), reports[len(reports)-1].fraction, "terminal state still reports completion")
	assert.Empty(t, fixture.requestPaths())
}

func TestUpdateMetadataUnknownTypeSkipped(t *testing.T) {
	fixture := newCatalogFixture()
	srv := fixture.server(t)

	logger := &recordingLogger{}
	sync := newTestSyncer(t, t.TempDir(), srv.URL, WithLogger(logger))

	// Checkpoint has no configured directory.
	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeCheckpoint}))

	warned := false
	for _, entry := range logger.entries() {
		if strings.Contains(entry, "unknown or unconfigured model type") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestUpdateMetadataProgressMonotonic(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 4; i++ {
		writeModelFile(t, dir, fmt.Sprintf("m%d.safetensors", i), []byte(fmt.Sprintf("weights %d", i)))
	}

	fixture := newCatalogFixture()
	srv := fixture.server(t)

	progress := &recordingProgress{}
	sync := newTestSyncer(t, dir, srv.URL)

	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}, WithProgress(progress)))

	reports := progress.all()
	require.NotEmpty(t, reports)
	assert.Equal(t, float64(0), reports[0].fraction)
	assert.Equal(t, float64(1), reports[len(reports)-1].fraction)
	assert.Equal(t, "done", reports[len(reports)-1].message)
	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i].fraction, reports[i-1].fraction,
			"fraction must be monotonically increasing")
	}
}

func TestUpdateMetadataCancellation(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "m.safetensors", []byte("weights"))

	fixture := newCatalogFixture()
	srv := fixture.server(t)

	sync := newTestSyncer(t, dir, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sync.UpdateMetadata(ctx, []ModelType{ModelTypeLora})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdateMetadataExtendedDescriptionFill(t *testing.T) {
	dir := t.TempDir()
	content := []byte("weights")
	model := writeModelFile(t, dir, "style.safetensors", content)

	fixture := newCatalogFixture()
	srv := fixture.server(t)
	// The by-hash record has no description of its own.
	fixture.addRecord(content, `{"id": 1, "modelId": 42}`)
	fixture.descriptions["42"] = "<p>from the model page</p>"

	sync := newTestSyncer(t, dir, srv.URL)

	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}))

	data, err := os.ReadFile(sidecarPath(model))
	require.NoError(t, err)
	meta, err := parseMetadataDescriptor(data)
	require.NoError(t, err)

	assert.Contains(t, meta.Description, "from the model page")
	assert.NotContains(t, meta.Description, "<p>")
}

func TestUpdateMetadataExtendedDescriptionDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	content := []byte("weights")
	model := writeModelFile(t, dir, "style.safetensors", content)

	fixture := newCatalogFixture()
	srv := fixture.server(t)
	fixture.addRecord(content, `{"id": 1, "modelId": 42, "description": "version text"}`)
	fixture.descriptions["42"] = "model page text"

	sync := newTestSyncer(t, dir, srv.URL)

	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}))

	data, err := os.ReadFile(sidecarPath(model))
	require.NoError(t, err)
	meta, err := parseMetadataDescriptor(data)
	require.NoError(t, err)

	assert.Equal(t, "version text", meta.Description)
}

func TestUpdateMetadataPreferExtendedDescription(t *testing.T) {
	dir := t.TempDir()
	content := []byte("weights")
	model := writeModelFile(t, dir, "style.safetensors", content)

	fixture := newCatalogFixture()
	srv := fixture.server(t)
	fixture.addRecord(content, `{"id": 1, "modelId": 42, "description": "version text"}`)
	fixture.descriptions["42"] = "model page text"

	sync := newTestSyncer(t, dir, srv.URL, WithPreferExtendedDescription())

	require.NoError(t, sync.UpdateMetadata(context.Background(), []ModelType{ModelTypeLora}))

	data, err := os.ReadFile(sidecarPath(model))
	require.NoError(t, err)
	meta, err := parseMetadataDescriptor(data)
	require.NoError(t, err)

	assert.Equal(t, "model page text", meta.Description)
}

func TestUpdatePreviewImagesSkipsRecordsWithoutImages(t *testing.T) {
	dir := t.TempDir()
	content := []byte("weights")
	model := writeModelFile(t, dir, "style.safetensors", content)

	fixture := newCatalogFixture()
	srv := fixture.server(t)
	fixture.addRecord(content, `{"id": 1, "modelId": 10}`)

	logger := &recordingLogger{}
	sync := newTestSyncer(t, dir, srv.URL, WithLogger(logger))

	require.NoError(t, sync.UpdatePreviewImages(context.Background(), []ModelType{ModelTypeLora}))

	assert.NoFileExists(t, previewPath(model))

	warned := false
	for _, entry := range logger.entries() {
		if strings.Contains(entry, "no preview available") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestUpdatePreviewImagesOverwriteFilter(t *testing.T) {
	dir := t.TempDir()
	model := writeModelFile(t, dir, "style.safetensors", []byte("weights"))
	require.NoError(t, os.WriteFile(previewPath(model), []byte("existing"), 0644))

	fixture := newCatalogFixture()
	srv := fixture.server(t)

	sync := newTestSyncer(t, dir, srv.URL)

	require.NoError(t, sync.UpdatePreviewImages(context.Background(), []ModelType{ModelTypeLora}))

	assert.Empty(t, fixture.requestPaths(), "existing preview must be excluded before any remote call")

	got, err := os.ReadFile(previewPath(model))
	require.NoError(t, err)
	assert.Equal(t, []byte("existing"), got)
}

func TestUpdatePreviewImagesFailedImageFetch(t *testing.T) {
	dir := t.TempDir()
	content := []byte("weights")
	model := writeModelFile(t, dir, "style.safetensors", content)

	fixture := newCatalogFixture()
	srv := fixture.server(t)
	// Record points at an image the server does not have.
	fixture.addRecord(content, fmt.Sprintf(`{"id": 1, "images": [{"url": %q}]}`, srv.URL+"/images/missing.png"))

	sync := newTestSyncer(t, dir, srv.URL)

	require.NoError(t, sync.UpdatePreviewImages(context.Background(), []ModelType{ModelTypeLora}))
	assert.NoFileExists(t, previewPath(model))
}

func TestListModels(t *testing.T) {
	dir := t.TempDir()
	withSidecar := writeModelFile(t, dir, "a.safetensors", []byte("a"))
	require.NoError(t, os.WriteFile(sidecarPath(withSidecar), []byte(`{}`), 0644))
	writeModelFile(t, dir, "b.safetensors", []byte("b"))

	fixture := newCatalogFixture()
	srv := fixture.server(t)

	sync := newTestSyncer(t, dir, srv.URL)

	statuses, err := sync.ListModels(context.Background(), []ModelType{ModelTypeLora})
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byName := map[string]ModelStatus{}
	for _, st := range statuses {
		byName[st.Path] = st
	}
	assert.True(t, byName[withSidecar].HasSidecar)
	assert.False(t, byName[withSidecar].HasPreview)
}

func TestNewSyncerRequiresModelDirs(t *testing.T) {
	_, err := NewSyncer(Config{})
	assert.Error(t, err)
}

func TestNewSyncerWithDirResolver(t *testing.T) {
	_, err := NewSyncer(Config{}, WithDirResolver(mapDirResolver{ModelTypeLora: t.TempDir()}))
	assert.NoError(t, err)
}
