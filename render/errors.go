package render

import "errors"

var (
	// ErrUnknownStage is returned when a program has no valid shader stage.
	ErrUnknownStage = errors.New("render: unknown shader stage")

	// ErrUnknownAttributeKind is returned for an attribute kind outside
	// Vertex, Index and Storage.
	ErrUnknownAttributeKind = errors.New("render: unknown attribute kind")

	// ErrNoShaderBuilder is returned when Nodes has no builder to ask.
	ErrNoShaderBuilder = errors.New("render: no shader builder")

	// ErrEmptyShader is returned when a builder produced no source for a
	// required stage.
	ErrEmptyShader = errors.New("render: empty shader source")

	// ErrDisposed is returned when a disposed render object is used.
	ErrDisposed = errors.New("render: render object disposed")
)
