// Package models - Delivery cache domain types.
//
// A "handle" is the opaque identifier the delivery channel returns once
// content has been uploaded (a Telegram file_id in production). Holding on to
// it lets the bot resend a rendered chapter without regenerating or
// re-uploading anything.
package models

import "time"

// ProductionKey identifies one producible artifact: a subject (manga) and
// variant (chapter or volume) rendered in one document format. Equality is
// structural; the key is usable as a Go map key.
type ProductionKey struct {
	SubjectID int64  `json:"subject_id"`
	VariantID int64  `json:"variant_id"`
	Format    string `json:"format"`
}

// ArtifactEntry is one cached delivery handle for a production key.
// At most one entry exists per key; writes overwrite (last write wins).
type ArtifactEntry struct {
	Key       ProductionKey `json:"key"`
	Handle    string        `json:"handle"`
	CreatedAt time.Time     `json:"created_at"`
}

// BatchEntry is one ordered group of handles for a multi-part delivery
// (one media-group segment of a chapter read inline). BatchIndex is assigned
// by the producer and is not guaranteed contiguous: readers return whatever
// indices are present, in ascending order.
type BatchEntry struct {
	SubjectID  int64     `json:"subject_id"`
	VariantID  int64     `json:"variant_id"`
	BatchIndex int       `json:"batch_index"`
	Handles    []string  `json:"handles"`
	CreatedAt  time.Time `json:"created_at"`
}
