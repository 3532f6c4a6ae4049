package splitter

import (
	"github.com/pkoukk/tiktoken-go"
)

// fallbackCharsPerToken approximates BPE behavior for English text when the
// tiktoken encoding cannot be loaded.
const fallbackCharsPerToken = 4

// TokenCounter counts tokens using a tiktoken encoding, degrading to a
// character-ratio estimate when the encoding is unavailable. The zero value
// always uses the estimate.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the given tiktoken encoding (e.g. "cl100k_base").
// A load failure is not an error: the counter falls back to the character
// ratio so the splitter keeps working offline.
func NewTokenCounter(encoding string) *TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count returns the token count of text.
func (c *TokenCounter) Count(text string) int {
	if c == nil || c.enc == nil {
		return (len(text) + fallbackCharsPerToken - 1) / fallbackCharsPerToken
	}
	return len(c.enc.Encode(text, nil, nil))
}
