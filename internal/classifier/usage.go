package classifier

import "encoding/json"

// Usage token counts of one classification call
type Usage struct {
	InputTokens       int64
	CachedInputTokens int64
	OutputTokens      int64
}

// IsZero reports whether no tokens were reported
func (u Usage) IsZero() bool {
	return u.InputTokens == 0 && u.CachedInputTokens == 0 && u.OutputTokens == 0
}

// rawUsage covers both the Responses and Chat Completions usage shapes
type rawUsage struct {
	InputTokens        *int64 `json:"input_tokens"`
	OutputTokens       *int64 `json:"output_tokens"`
	PromptTokens       *int64 `json:"prompt_tokens"`
	CompletionTokens   *int64 `json:"completion_tokens"`
	CachedInputTokens  *int64 `json:"cached_input_tokens"`
	InputTokensDetails *struct {
		CachedTokens *int64 `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	PromptTokensDetails *struct {
		CachedTokens *int64 `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

// usageFromJSON converts a provider usage object. Missing fields count as zero.
func usageFromJSON(data json.RawMessage) Usage {
	if len(data) == 0 {
		return Usage{}
	}
	var raw rawUsage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Usage{}
	}

	u := Usage{
		InputTokens:  first(raw.InputTokens, raw.PromptTokens),
		OutputTokens: first(raw.OutputTokens, raw.CompletionTokens),
	}
	switch {
	case raw.InputTokensDetails != nil && raw.InputTokensDetails.CachedTokens != nil:
		u.CachedInputTokens = *raw.InputTokensDetails.CachedTokens
	case raw.PromptTokensDetails != nil && raw.PromptTokensDetails.CachedTokens != nil:
		u.CachedInputTokens = *raw.PromptTokensDetails.CachedTokens
	case raw.CachedInputTokens != nil:
		u.CachedInputTokens = *raw.CachedInputTokens
	}
	return u
}

func first(values ...*int64) int64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

// Prices USD per one million tokens
type Prices struct {
	Input       float64
	CachedInput float64
	Output      float64
}

// Cost USD cost of one call
type Cost struct {
	Input       float64
	CachedInput float64
	Output      float64
	Total       float64
}

// Cost prices a usage. Cached tokens are billed on top of the full input count.
func (p Prices) Cost(u Usage) Cost {
	c := Cost{
		Input:       float64(u.InputTokens) / 1_000_000 * p.Input,
		CachedInput: float64(u.CachedInputTokens) / 1_000_000 * p.CachedInput,
		Output:      float64(u.OutputTokens) / 1_000_000 * p.Output,
	}
	c.Total = c.Input + c.CachedInput + c.Output
	return c
}
