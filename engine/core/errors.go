package core

import (
	"errors"
)

var (
	// Permanent upload failures. Cached as Rejected, never retried.
	ErrUnsupportedFormat = errors.New("pixel data is in a format the upload path does not support")
	ErrOversizeUpload    = errors.New("upload exceeds the total staging capacity")
	ErrMismatchedLayers  = errors.New("texture array layers differ in size or compression")

	// Transient upload failures. The request stays pending and is retried
	// on the next flush.
	ErrPixelsBusy       = errors.New("pixel data is momentarily locked elsewhere")
	ErrStagingExhausted = errors.New("staging budget exhausted for this frame")

	ErrUnknown = errors.New("unknown")
)
