package generator

import "errors"

var (
	ErrModelNotFound        = errors.New("model not found")
	ErrPipelineConstruction = errors.New("there was a problem loading the model")
	ErrGeneration           = errors.New("there was a problem generating images")
	ErrNotReady             = errors.New("pipeline is not ready")
	ErrBusy                 = errors.New("another model load or generation is in progress")
	ErrInvalidRequest       = errors.New("invalid generation request")
)
