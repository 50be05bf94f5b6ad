package assistant

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Config configures the assistant module.
type Config struct {
	// BaseURL is the base URL of the catalog API.
	// If empty, DefaultBaseURL is used.
	BaseURL string

	// APIToken is an optional catalog API token, appended to requests
	// as a query parameter to lift authenticated rate limits.
	// It is never logged.
	APIToken string

	// ModelDirs maps each model type to the root directory scanned for
	// model files of that type. Types without an entry are skipped with
	// a warning. Ignored when WithDirResolver is supplied.
	ModelDirs map[ModelType]string

	// Extensions lists the model file extensions to discover.
	// If empty, DefaultExtensions is used.
	Extensions []string
}

// DefaultExtensions are the model file extensions discovered when
// Config.Extensions is empty.
var DefaultExtensions = []string{".safetensors"}

// ModelType identifies a category of model files. Each type maps to a
// filesystem root directory via Config.ModelDirs or a DirResolver.
type ModelType string

// The closed set of model types. The values match the labels the host
// application presents to users.
const (
	ModelTypeCheckpoint ModelType = "Checkpoint"
	ModelTypeLora       ModelType = "LoRA/LyCORIS/DoRA"
	ModelTypeEmbedding  ModelType = "Textual Inversion"
)

// AllModelTypes lists every known model type in presentation order.
var AllModelTypes = []ModelType{ModelTypeCheckpoint, ModelTypeLora, ModelTypeEmbedding}

// ParseModelType parses a model type from a short CLI/config name
// ("checkpoint", "lora", "embedding") or the full display label.
// Returns ErrInvalidType if the string matches neither.
func ParseModelType(s string) (ModelType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "checkpoint", "ckpt":
		return ModelTypeCheckpoint, nil
	case "lora", "lycoris", "dora":
		return ModelTypeLora, nil
	case "embedding", "textual-inversion", "ti":
		return ModelTypeEmbedding, nil
	}
	for _, t := range AllModelTypes {
		if s == string(t) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// MetadataDescriptor is the persisted sidecar record for one model file.
//
// Hash is the stable identity key: it is computed once and never
// recomputed unless explicitly requested. Notes, PreferredWeight and
// NegativeText are user-owned and never touched by the merge.
type MetadataDescriptor struct {
	// Hash is the SHA-256 content hash of the model file, lowercase hex.
	Hash string

	// CatalogID is the catalog's model-version id. Nil until matched.
	CatalogID *int64

	// CatalogModelID is the catalog's parent model id. Nil until matched.
	CatalogModelID *int64

	// Description is the model description, plain text unless HTML
	// descriptions are enabled.
	Description string

	// BaseVersion is the base model tag, e.g. "SDXL 1.0". Defaults to "Other".
	BaseVersion string

	// ActivationText is the comma-joined trigger word list. Remote-owned.
	ActivationText string

	// PreferredWeight is the user's preferred application weight.
	PreferredWeight float64

	// NegativeText is the user's negative prompt text.
	NegativeText string

	// Notes is free-form user text.
	Notes string
}

// DefaultBaseVersion is the base model tag used when the sidecar or the
// catalog record carries none.
const DefaultBaseVersion = "Other"

// newMetadataDescriptor returns a descriptor with all defaults applied.
func newMetadataDescriptor() MetadataDescriptor {
	return MetadataDescriptor{BaseVersion: DefaultBaseVersion}
}

// metadataWire mirrors the sidecar JSON schema. The keys are the
// human-readable aliases the host application's UI reads, so they must
// not change. Pointer fields distinguish absent keys from zero values
// when default-filling.
type metadataWire struct {
	Hash            *string  `json:"hash,omitempty"`
	ID              *int64   `json:"id,omitempty"`
	ModelID         *int64   `json:"model id,omitempty"`
	Description     *string  `json:"description,omitempty"`
	BaseVersion     *string  `json:"sd version"`
	ActivationText  *string  `json:"activation text"`
	PreferredWeight *float64 `json:"preferred weight"`
	NegativeText    *string  `json:"negative text"`
	Notes           *string  `json:"notes"`
}

// parseMetadataDescriptor parses sidecar JSON into a MetadataDescriptor,
// filling defaults for absent fields. Unknown keys are ignored so that
// manually edited sidecars keep working. Only structurally invalid JSON
// is rejected.
func parseMetadataDescriptor(data []byte) (MetadataDescriptor, error) {
	var w metadataWire
	if err := json.Unmarshal(data, &w); err != nil {
		return MetadataDescriptor{}, fmt.Errorf("%w: parsing sidecar: %v", ErrStorage, err)
	}

	d := newMetadataDescriptor()
	if w.Hash != nil {
		d.Hash = *w.Hash
	}
	d.CatalogID = w.ID
	d.CatalogModelID = w.ModelID
	if w.Description != nil {
		d.Description = *w.Description
	}
	if w.BaseVersion != nil && *w.BaseVersion != "" {
		d.BaseVersion = *w.BaseVersion
	}
	if w.ActivationText != nil {
		d.ActivationText = *w.ActivationText
	}
	if w.PreferredWeight != nil {
		d.PreferredWeight = *w.PreferredWeight
	}
	if w.NegativeText != nil {
		d.NegativeText = *w.NegativeText
	}
	if w.Notes != nil {
		d.Notes = *w.Notes
	}

	return d, nil
}

// encodeMetadataDescriptor serializes a descriptor to pretty-printed
// sidecar JSON using the wire aliases.
func encodeMetadataDescriptor(d MetadataDescriptor) ([]byte, error) {
	w := metadataWire{
		ID:              d.CatalogID,
		ModelID:         d.CatalogModelID,
		BaseVersion:     &d.BaseVersion,
		ActivationText:  &d.ActivationText,
		PreferredWeight: &d.PreferredWeight,
		NegativeText:    &d.NegativeText,
		Notes:           &d.Notes,
	}
	if d.Hash != "" {
		w.Hash = &d.Hash
	}
	if d.Description != "" {
		w.Description = &d.Description
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encoding sidecar: %v", ErrStorage, err)
	}
	return data, nil
}

// ModelDescriptor pairs a metadata record with the absolute path of the
// model file it describes. A descriptor is owned by one batch step at a
// time: it is built (or loaded), mutated in place by the merge, and
// discarded after being persisted.
type ModelDescriptor struct {
	// Metadata is the sidecar record.
	Metadata MetadataDescriptor

	// Path is the absolute path of the model file.
	Path string
}

// Basename returns the file name component of the model path.
func (d ModelDescriptor) Basename() string {
	return filepath.Base(d.Path)
}

// CatalogRecord is the catalog's model-version response shape.
// Read-only and ephemeral: the match is never persisted as a foreign
// key, only its extracted fields are.
type CatalogRecord struct {
	// ID is the model-version id.
	ID int64

	// ModelID is the parent model id ("modelId" on the wire).
	ModelID int64

	// BaseModel is the base model tag. Empty when the catalog omits it.
	BaseModel string

	// TrainedWords is the ordered trigger word list.
	TrainedWords []string

	// Description is the version description, possibly HTML.
	Description string

	// Images is the ordered image list; the first element is the
	// canonical preview.
	Images []CatalogImage
}

// CatalogImage is one entry of a catalog record's image list.
type CatalogImage struct {
	URL string
}

// catalogRecordWire mirrors the catalog's model-version JSON.
type catalogRecordWire struct {
	ID           *int64             `json:"id"`
	ModelID      *int64             `json:"modelId"`
	BaseModel    *string            `json:"baseModel"`
	TrainedWords []string           `json:"trainedWords"`
	Description  *string            `json:"description"`
	Images       []catalogImageWire `json:"images"`
}

type catalogImageWire struct {
	URL string `json:"url"`
}

// parseCatalogRecord parses a model-version response. Absent optional
// fields take their zero values; a payload without an id is rejected as
// structurally invalid. Unknown fields are ignored.
func parseCatalogRecord(data []byte) (CatalogRecord, error) {
	var w catalogRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return CatalogRecord{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if w.ID == nil {
		return CatalogRecord{}, fmt.Errorf("%w: missing id", ErrValidation)
	}

	rec := CatalogRecord{
		ID:           *w.ID,
		TrainedWords: w.TrainedWords,
	}
	if w.ModelID != nil {
		rec.ModelID = *w.ModelID
	}
	if w.BaseModel != nil {
		rec.BaseModel = *w.BaseModel
	}
	if w.Description != nil {
		rec.Description = *w.Description
	}
	for _, img := range w.Images {
		rec.Images = append(rec.Images, CatalogImage{URL: img.URL})
	}

	return rec, nil
}

// ModelStatus describes one discovered model file and the presence of
// its sidecar artifacts. Returned by Syncer.ListModels.
type ModelStatus struct {
	// Path is the absolute path of the model file.
	Path string `json:"path"`

	// Type is the model type the file was discovered under.
	Type ModelType `json:"type"`

	// HasSidecar reports whether a metadata sidecar exists.
	HasSidecar bool `json:"has_sidecar"`

	// HasPreview reports whether a preview image exists.
	HasPreview bool `json:"has_preview"`
}
