package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const instructions = `You are a concise personal email assistant. Summarize the email and classify it.
Tone: calm, confident, minimal and helpful. No greetings, no fluff, no emojis.
Focus only on the core, user-relevant information. Strip boilerplate like unsubscribe links, marketing footers, social links, legal disclaimers and tracking text.
Prefer 1 sentence; 2 sentences max. Use short, direct sentences.
Use "you" when describing impact or required action, but avoid verbose phrasing like "You received...".
For statements and bills: include statement type, amount due, minimum payment and due date when present.
For alerts: state what happened and what you should do, if anything.
If the email is purely marketing with no actionable info, say so briefly.
Do not mention email metadata (subject line, sent date) unless the body explicitly includes it.
Return strict JSON that matches the provided schema.
Use one of the provided categories and set confidence between 0 and 1.
Categories:
`

// ErrUpstream is returned for responses that should count against the circuit breaker
var ErrUpstream = errors.New("llm upstream error")

// Result classification outcome. Category is returned as the model produced it.
type Result struct {
	Category   string
	Confidence float64
	Summary    string
	Usage      Usage
}

// Config classifier settings
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Classifier summarizes and classifies mail with the OpenAI Responses API
type Classifier struct {
	cfg        Config
	httpClient *http.Client
	trimmer    Trimmer
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// New creates a classifier
func New(cfg Config, trimmer Trimmer, logger *slog.Logger) *Classifier {
	logger = logger.With("component", "classifier")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Bad requests are our fault and must not open the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUpstream)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Classifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		trimmer:    trimmer,
		breaker:    breaker,
		logger:     logger,
	}
}

// Model returns the configured model name
func (c *Classifier) Model() string {
	return c.cfg.Model
}

type responsesRequest struct {
	Model        string         `json:"model"`
	Instructions string         `json:"instructions"`
	Input        string         `json:"input"`
	Text         map[string]any `json:"text"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage json.RawMessage `json:"usage"`
}

// Classify trims text to maxInputTokens, then asks the model for a category,
// confidence and summary. An unparsable answer yields an empty category and
// zero confidence with usage still populated. When the response body itself
// is malformed, the error comes with a Result holding only the usage that
// could be recovered.
func (c *Classifier) Classify(ctx context.Context, text string, categories []string, maxInputTokens int) (*Result, error) {
	input := c.trimmer.Trim(text, maxInputTokens)

	body, err := json.Marshal(responsesRequest{
		Model:        c.cfg.Model,
		Instructions: instructions + "- " + strings.Join(categories, "\n- "),
		Input:        input,
		Text: map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   "email_summary",
				"strict": true,
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"category":   map[string]any{"type": "string", "enum": categories},
						"confidence": map[string]any{"type": "number"},
						"summary":    map[string]any{"type": "string"},
					},
					"required":             []string{"category", "confidence", "summary"},
					"additionalProperties": false,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var usage json.RawMessage
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.do(ctx, body)
		if resp != nil {
			usage = resp.Usage
		}
		return resp, err
	})
	if err != nil {
		// Tokens are billed even when the answer is unreadable.
		if u := usageFromJSON(usage); !u.IsZero() {
			return &Result{Usage: u}, err
		}
		return nil, err
	}
	resp := out.(*responsesResponse)

	result := parseAnswer(outputText(resp))
	result.Usage = usageFromJSON(resp.Usage)
	return result, nil
}

func (c *Classifier) do(ctx context.Context, body []byte) (*responsesResponse, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/responses"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai request failed: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("openai API error (%d): %s", resp.StatusCode, truncate(string(respBody), 300))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, apiErr)
		}
		return nil, apiErr
	}

	var parsed responsesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		var partial struct {
			Usage json.RawMessage `json:"usage"`
		}
		if json.Unmarshal(respBody, &partial) == nil && len(partial.Usage) > 0 {
			return &responsesResponse{Usage: partial.Usage}, fmt.Errorf("failed to parse response: %w", err)
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &parsed, nil
}

func outputText(resp *responsesResponse) string {
	if resp.OutputText != "" {
		return resp.OutputText
	}
	var sb strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type == "output_text" {
				sb.WriteString(content.Text)
			}
		}
	}
	return sb.String()
}

// parseAnswer decodes the model's JSON answer leniently
func parseAnswer(text string) *Result {
	var answer struct {
		Category   string          `json:"category"`
		Confidence json.RawMessage `json:"confidence"`
		Summary    string          `json:"summary"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &answer); err != nil {
		return &Result{}
	}
	return &Result{
		Category:   answer.Category,
		Confidence: parseConfidence(answer.Confidence),
		Summary:    strings.TrimSpace(answer.Summary),
	}
}

func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	value := strings.Trim(string(raw), `"`)
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
