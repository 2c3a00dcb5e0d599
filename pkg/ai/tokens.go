package ai

import (
	"github.com/pkoukk/tiktoken-go"
)

// TruncateForEmbedding clips input to at most maxTokens tokens under the given
// encoding so oversized attribute texts never exceed the embedding model's
// context window. On encoder errors the input is returned unchanged.
func TruncateForEmbedding(input string, encoder string, maxTokens int) string {
	if input == "" || maxTokens <= 0 {
		return input
	}

	enc, err := tiktoken.GetEncoding(encoder)
	if err != nil {
		return input
	}

	tokens := enc.Encode(input, nil, nil)
	if len(tokens) <= maxTokens {
		return input
	}
	return enc.Decode(tokens[:maxTokens])
}
