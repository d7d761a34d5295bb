package loader

import "errors"

var (
	// ErrNoFiles indicates a path or glob that matched no regular file.
	ErrNoFiles = errors.New("no files matched")

	// ErrUnsupportedFormat indicates a file extension without a loader.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)
