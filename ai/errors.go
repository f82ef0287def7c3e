package ai

import "errors"

var (
	// ErrModelRequired is returned when an Embedder is created without a model.
	ErrModelRequired = errors.New("model is required")

	// ErrInvalidModelInfo indicates the model_info file is missing, unreadable or incomplete.
	ErrInvalidModelInfo = errors.New("invalid model info")
)
