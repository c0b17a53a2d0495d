package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model used for all pipeline calls.
	DefaultModel = "gemini-2.5-flash"
	// DefaultMaxConcurrent bounds simultaneous outbound LLM calls per client.
	DefaultMaxConcurrent = 5
)

// Generator is the capability the pipeline stages need from the LLM layer.
// The production implementation is Client; tests supply stubs.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Options configures a single generation call.
type Options struct {
	SystemPrompt string
	Temperature  float32 // 0 means provider default
	MaxTokens    int32   // 0 means provider default
	Model        string  // Override of the client's model
}

// Client wraps the Gemini SDK and gates all outbound calls behind a counting
// semaphore so concurrently active pipeline stages queue instead of fanning
// out unbounded requests.
type Client struct {
	modelName string
	gClient   *genai.Client
	gate      *semaphore.Weighted
}

// NewClient creates a new LLM client. The API key is resolved from
// GEMINI_API_KEY (or alternates) or from the ai.gemini.api_key config key.
func NewClient(modelName string, maxConcurrent int64) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("ai.gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or ai.gemini.api_key in the config file")
	}

	if modelName == "" {
		modelName = viper.GetString("ai.gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName: modelName,
		gClient:   gClient,
		gate:      semaphore.NewWeighted(maxConcurrent),
	}, nil
}

// ModelName returns the model this client generates with.
func (c *Client) ModelName() string {
	return c.modelName
}

// Generate runs a single generation call through the concurrency gate.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	if err := c.gate.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for LLM slot: %w", err)
	}
	defer c.gate.Release(1)

	modelName := c.modelName
	if opts.Model != "" {
		modelName = opts.Model
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var config *genai.GenerateContentConfig
	if opts.MaxTokens > 0 || opts.Temperature > 0 || opts.SystemPrompt != "" {
		config = &genai.GenerateContentConfig{}
		if opts.MaxTokens > 0 {
			config.MaxOutputTokens = opts.MaxTokens
		}
		if opts.Temperature > 0 {
			config.Temperature = genai.Ptr(opts.Temperature)
		}
		if opts.SystemPrompt != "" {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: opts.SystemPrompt}},
			}
		}
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}

	return text, nil
}

// ExpandKeywords asks the model for up to five related English search keywords.
// On malformed output the original query is returned alone, so collection can
// always proceed.
func ExpandKeywords(ctx context.Context, gen Generator, query string) []string {
	prompt := fmt.Sprintf(`Generate 5 related search keywords for: %q

Requirements:
1. All keywords must be in English
2. Cover different aspects (technical, business, social, future trends)
3. Be specific and relevant to the original keyword
4. Return as a JSON array only

Example format: ["keyword1", "keyword2", "keyword3", "keyword4", "keyword5"]`, query)

	resp, err := gen.Generate(ctx, prompt, Options{
		SystemPrompt: "You are a keyword expansion expert.",
		Temperature:  0.7,
		MaxTokens:    200,
	})
	if err != nil {
		return []string{query}
	}

	parsed := ParseJSON[[]string](resp)
	if parsed.Malformed {
		return []string{query}
	}

	keywords := []string{query}
	for _, kw := range parsed.Value {
		kw = strings.TrimSpace(kw)
		if kw != "" && !strings.EqualFold(kw, query) {
			keywords = append(keywords, kw)
		}
		if len(keywords) >= 6 {
			break
		}
	}
	return keywords
}

// ParseResult is the outcome of decoding JSON-ish model output: either a value
// or the raw text that failed to decode. Call sites handle both variants.
type ParseResult[T any] struct {
	Value     T
	Malformed bool
	Raw       string
}

// ParseJSON strips markdown fences from a model response and decodes the first
// JSON payload it finds into T. It never panics on garbage; malformed input
// yields a Malformed result carrying the raw text.
func ParseJSON[T any](response string) ParseResult[T] {
	cleaned := StripCodeFences(response)

	var value T
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		// Fall back to the outermost bracketed region, which tolerates
		// leading prose around the payload.
		if region := bracketedRegion(cleaned); region != "" {
			if err := json.Unmarshal([]byte(region), &value); err == nil {
				return ParseResult[T]{Value: value}
			}
		}
		return ParseResult[T]{Malformed: true, Raw: response}
	}
	return ParseResult[T]{Value: value}
}

// StripCodeFences removes a surrounding ```json ... ``` or ``` ... ``` block.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	return s
}

// bracketedRegion returns the widest [...] or {...} span in s, or "".
func bracketedRegion(s string) string {
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start >= 0 && end > start {
			return s[start : end+1]
		}
	}
	return ""
}
