// Package codec converts between client wire dialects and the canonical
// request model, and renders upstream stream events back into each dialect.
package codec

import (
	"net/http"

	"codexrelay/internal/stream"
	"codexrelay/internal/types"
)

// Format identifies the API wire format of a request/response.
type Format int

const (
	FormatAnthropic Format = iota
	FormatChatCompletions
)

// Decoder converts a raw request body into a CanonicalRequest.
type Decoder interface {
	Decode(body []byte) (*types.CanonicalRequest, error)
	Format() Format
}

// Translator is the streaming translation interface. Implementations read
// upstream events from a stream.Reader and write client-format output.
type Translator interface {
	Translate(reader *stream.Reader)
}

// Encoder writes responses in a specific API format.
type Encoder interface {
	WriteStreamHeaders(w http.ResponseWriter, statusCode int)
	StreamTranslator(w http.ResponseWriter, model string) Translator
	WriteCollected(w http.ResponseWriter, statusCode int, agg *stream.Aggregate, model string)
	WriteError(w http.ResponseWriter, statusCode int, message string)
}

// Codec pairs a Decoder and Encoder for a given API format.
type Codec struct {
	Decoder Decoder
	Encoder Encoder
}

// NewAnthropicCodec returns the codec for the Anthropic Messages dialect.
func NewAnthropicCodec() Codec {
	return Codec{Decoder: &AnthropicDecoder{}, Encoder: &AnthropicEncoder{}}
}

// NewChatCodec returns the codec for the Chat Completions dialect.
func NewChatCodec() Codec {
	return Codec{Decoder: &ChatDecoder{}, Encoder: &ChatEncoder{}}
}
