// Package compress implements the threshold-gated gzip stage described
// in spec.md §4.8. Grounded on transport.go's createRequest gzip
// branch, generalized into a standalone stage with a pass-through
// fallback and its own Content-Type/Content-Encoding decision.
//
// Uses github.com/klauspost/compress's gzip implementation, a drop-in
// replacement for compress/gzip that the bureau example pack pulls in
// for its own artifact compression.
package compress

import (
	"bytes"

	"github.com/klauspost/compress/gzip"
)

// Result is the outcome of Compress: the bytes to send, and the
// headers that must go with them (spec.md §4.8, §6).
type Result struct {
	Body            []byte
	ContentEncoding string // "gzip" or ""
	ContentType     string
}

// Compressor gzips a payload once it is at least Threshold bytes,
// passing it through unchanged otherwise. If Enabled is false it never
// compresses.
type Compressor struct {
	Enabled   bool
	Threshold int
}

// New creates a Compressor with the given enablement and byte
// threshold (spec.md §6 enableCompression/compressionThreshold).
func New(enabled bool, threshold int) *Compressor {
	return &Compressor{Enabled: enabled, Threshold: threshold}
}

// Compress gzips payload when eligible, setting Content-Encoding: gzip
// and Content-Type: application/octet-stream; otherwise it passes the
// payload through with Content-Type: application/json (spec.md §4.8,
// §6). A gzip-writer failure falls back to the uncompressed payload
// rather than dropping the report — compression failures are never
// fatal (spec.md §7).
func (c *Compressor) Compress(payload []byte) Result {
	if !c.Enabled || len(payload) < c.Threshold {
		return Result{Body: payload, ContentType: "application/json"}
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return Result{Body: payload, ContentType: "application/json"}
	}
	if err := w.Close(); err != nil {
		return Result{Body: payload, ContentType: "application/json"}
	}

	return Result{
		Body:            buf.Bytes(),
		ContentEncoding: "gzip",
		ContentType:     "application/octet-stream",
	}
}
