// Package mapstore persists generated boundary maps in SQLite.
//
// Each generation is a run keyed by a UUID. The label, confidence and error
// images are stored as gzip-compressed gob blobs alongside their dimensions,
// so a run can be reloaded without the encoder, decoder or classifier.
// The schema is managed by golang-migrate from migrations embedded in the
// binary.
package mapstore
