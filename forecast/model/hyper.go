package model

import "fmt"

const (
	DefaultInputChunkLength  = 60
	DefaultOutputChunkLength = 7
	DefaultEpochs            = 30

	maxInputChunkLength  = 730
	maxOutputChunkLength = 90
	maxEpochs            = 1000
)

type Hyperparameters struct {
	InputChunkLength  int `json:"input_chunk_length"`
	OutputChunkLength int `json:"output_chunk_length"`
	NEpochs           int `json:"n_epochs"`
}

// WithDefaults fills zero values.
func (h Hyperparameters) WithDefaults() Hyperparameters {
	if h.InputChunkLength == 0 {
		h.InputChunkLength = DefaultInputChunkLength
	}
	if h.OutputChunkLength == 0 {
		h.OutputChunkLength = DefaultOutputChunkLength
	}
	if h.NEpochs == 0 {
		h.NEpochs = DefaultEpochs
	}
	return h
}

func (h Hyperparameters) Validate() error {
	switch {
	case h.InputChunkLength < 1 || h.InputChunkLength > maxInputChunkLength:
		return fmt.Errorf("%w: input_chunk_length must be within [1, %d]", ErrInvalidRecords, maxInputChunkLength)
	case h.OutputChunkLength < 1 || h.OutputChunkLength > maxOutputChunkLength:
		return fmt.Errorf("%w: output_chunk_length must be within [1, %d]", ErrInvalidRecords, maxOutputChunkLength)
	case h.NEpochs < 1 || h.NEpochs > maxEpochs:
		return fmt.Errorf("%w: n_epochs must be within [1, %d]", ErrInvalidRecords, maxEpochs)
	}
	return nil
}
