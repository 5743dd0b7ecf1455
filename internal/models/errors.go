package models

import (
	"context"
	"errors"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrLoad               = errors.New("failed to load document")
	ErrEmbeddingProvider  = errors.New("embedding provider error")
	ErrGenerationProvider = errors.New("generation provider error")
	ErrEmptyResponse      = errors.New("empty response from model")
	ErrMissingCredential  = errors.New("missing document or api key")
	ErrInvalidState       = errors.New("action not available in current mode")
)

// InstructionMessage is shown whenever the inputs required to start are absent
const InstructionMessage = "Please upload a document and enter your OpenAI API key to begin."

// UserMessage turns an error into the text rendered by the front ends
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return InstructionMessage
	case errors.Is(err, ErrUnsupportedFormat):
		return "Only PDF and TXT files are supported."
	case errors.Is(err, ErrLoad):
		return "The document could not be read: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "The model provider did not respond in time. Please try again."
	case errors.Is(err, ErrEmbeddingProvider):
		return "Indexing failed while calling the embedding provider: " + err.Error()
	case errors.Is(err, ErrEmptyResponse):
		return "The model returned an empty response. Please try again."
	case errors.Is(err, ErrGenerationProvider):
		return "The chat model request failed: " + err.Error()
	default:
		return err.Error()
	}
}
