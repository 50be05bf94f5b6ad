package assistant

import (
	"strings"

	"github.com/kennygrant/sanitize"
)

// ponyBaseModel is collapsed into the default base version category.
// The match is an exact literal: other casings and substrings pass
// through unchanged.
const ponyBaseModel = "Pony"

// mergeCatalogRecord merges a fetched catalog record into a metadata
// descriptor in place.
//
// CatalogID and CatalogModelID are copied directly. BaseVersion takes
// the record's base model tag (with the Pony collapse) and keeps its
// existing value when the record carries none. ActivationText is fully
// remote-owned: an empty trained-word list clears it. Description is
// handled separately by mergeDescription. Notes, PreferredWeight and
// NegativeText belong to the user and are never touched.
func mergeCatalogRecord(meta *MetadataDescriptor, rec CatalogRecord, normalizer PromptNormalizer) {
	meta.CatalogID = &rec.ID
	meta.CatalogModelID = &rec.ModelID

	if rec.BaseModel != "" {
		meta.BaseVersion = normalizeBaseModel(rec.BaseModel)
	}

	activation := strings.Join(rec.TrainedWords, ", ")
	if activation != "" && normalizer != nil {
		activation = normalizer.Normalize(activation)
	}
	meta.ActivationText = activation
}

// mergeDescription sets the descriptor's description from remote text.
// A blank or whitespace-only source must not clobber an existing local
// description, so those are ignored. Unless keepHTML is set the text is
// stripped of HTML markup. Reports whether the description was updated.
func mergeDescription(meta *MetadataDescriptor, text string, keepHTML bool) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if !keepHTML {
		text = sanitize.HTML(text)
	}
	meta.Description = text
	return true
}

// normalizeBaseModel applies the categorical collapse to a base model tag.
func normalizeBaseModel(baseModel string) string {
	if baseModel == ponyBaseModel {
		return DefaultBaseVersion
	}
	return baseModel
}
