// Package config holds the fixed product limits for the flipbook service.
// These are deliberate product decisions, not deployment tunables; deployment
// settings (project IDs, bucket names) are read from the environment by the
// service constructors instead.
package config

import "time"

const (
	// MaxFileSize is the largest PDF accepted, in bytes.
	MaxFileSize = 20 << 20 // 20 MiB

	// MaxDocumentsPerIdentifier caps how many flipbooks one anonymous
	// identifier may own at a time.
	MaxDocumentsPerIdentifier = 20

	// RateLimitCeiling is the number of upload authorizations allowed per
	// identifier within one RateLimitWindow.
	RateLimitCeiling = 20

	// RateLimitWindow is the rolling accounting period for upload
	// authorizations. The window resets relative to first use, not to a
	// clock boundary.
	RateLimitWindow = time.Hour

	// PDFMimeType is the only MIME type the validator accepts.
	PDFMimeType = "application/pdf"

	// RenderScale is the fixed scale factor applied to every rasterized
	// page. Uniform across pages and devices; trades memory for sharpness.
	RenderScale = 2.5

	// JPEGQuality is the encoder quality (out of 100) for page bitmaps.
	JPEGQuality = 95
)
