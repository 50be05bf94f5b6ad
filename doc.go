// Package assistant synchronizes metadata for locally stored ML model
// files against the Civitai catalog.
//
// For every model file found under the configured directories the
// pipeline computes a SHA-256 content hash, looks the hash up in the
// remote catalog, merges selected fields into a JSON sidecar record
// colocated with the model file, and optionally downloads a preview
// image. The package serves two use cases:
//
//  1. Programmatic API via the Syncer interface - host applications
//     create a Syncer with NewSyncer and invoke UpdateMetadata or
//     UpdatePreviewImages as batch jobs.
//
//  2. Embeddable CLI via NewCommand - parent CLI tools can attach a
//     complete command tree to their Cobra root command, providing
//     commands like "mytool civitai sync" and "mytool civitai previews".
//
// # Sidecar Convention
//
// For a model file model.safetensors the pipeline maintains two
// colocated files: model.json (the metadata record, human-editable,
// unknown keys are tolerated on read) and model.preview.png (raw
// preview bytes as delivered by the catalog).
//
// # Failure Isolation
//
// Batch operations never abort on a single file: a failed hash, a
// missing catalog record, or an unwritable sidecar is logged and the
// batch moves on to the next file. Remote failures of any kind
// (network, non-2xx status, malformed body) are collapsed into "no
// metadata available" rather than surfaced as errors.
package assistant
