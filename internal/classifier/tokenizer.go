package classifier

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "o200k_base"

// Trimmer cuts text to a token budget
type Trimmer interface {
	Trim(text string, maxTokens int) string
}

// TiktokenTrimmer trims with the model's BPE encoding
type TiktokenTrimmer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTrimmer loads the encoding for model, falling back to o200k_base
func NewTiktokenTrimmer(model string) (*TiktokenTrimmer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer: %w", err)
		}
	}
	return &TiktokenTrimmer{enc: enc}, nil
}

// Trim implements Trimmer
func (t *TiktokenTrimmer) Trim(text string, maxTokens int) string {
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.enc.Decode(tokens[:maxTokens])
}

// ApproxTrimmer assumes four bytes per token. Used when no encoding can be loaded.
type ApproxTrimmer struct{}

// Trim implements Trimmer
func (ApproxTrimmer) Trim(text string, maxTokens int) string {
	limit := maxTokens * 4
	if len(text) <= limit {
		return text
	}
	text = text[:limit]
	for len(text) > 0 && !utf8.ValidString(text) {
		text = text[:len(text)-1]
	}
	return text
}
