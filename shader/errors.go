package shader

import "errors"

var (
	// ErrMissingAttribute is returned when a geometry lacks an attribute
	// every program reads.
	ErrMissingAttribute = errors.New("shader: missing attribute")

	// ErrUnsupportedFormat is returned for a vertex format with no WGSL
	// counterpart.
	ErrUnsupportedFormat = errors.New("shader: unsupported vertex format")
)
