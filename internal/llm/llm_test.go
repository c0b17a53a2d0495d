package llm

import (
	"context"
	"testing"
)

func TestParseJSONArray(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      []string
		malformed bool
	}{
		{
			name:  "plain array",
			input: `["a", "b", "c"]`,
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "fenced json block",
			input: "```json\n[\"x\", \"y\"]\n```",
			want:  []string{"x", "y"},
		},
		{
			name:  "bare fence",
			input: "```\n[\"x\"]\n```",
			want:  []string{"x"},
		},
		{
			name:  "leading prose",
			input: "Here are the keywords:\n[\"one\", \"two\"]",
			want:  []string{"one", "two"},
		},
		{
			name:      "not json at all",
			input:     "I cannot help with that.",
			malformed: true,
		},
		{
			name:      "empty response",
			input:     "",
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseJSON[[]string](tt.input)
			if got.Malformed != tt.malformed {
				t.Fatalf("ParseJSON() malformed = %v, want %v", got.Malformed, tt.malformed)
			}
			if tt.malformed {
				if got.Raw != tt.input {
					t.Errorf("ParseJSON() raw = %q, want original input", got.Raw)
				}
				return
			}
			if len(got.Value) != len(tt.want) {
				t.Fatalf("ParseJSON() = %v, want %v", got.Value, tt.want)
			}
			for i := range tt.want {
				if got.Value[i] != tt.want[i] {
					t.Errorf("ParseJSON()[%d] = %q, want %q", i, got.Value[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseJSONObject(t *testing.T) {
	type topic struct {
		Name string `json:"name"`
	}
	got := ParseJSON[[]topic]("```json\n[{\"name\": \"pricing\"}, {\"name\": \"reliability\"}]\n```")
	if got.Malformed {
		t.Fatal("ParseJSON() unexpectedly malformed")
	}
	if len(got.Value) != 2 || got.Value[0].Name != "pricing" {
		t.Errorf("ParseJSON() = %+v", got.Value)
	}
}

type staticGenerator struct {
	response string
	err      error
}

func (s staticGenerator) Generate(_ context.Context, _ string, _ Options) (string, error) {
	return s.response, s.err
}

func TestExpandKeywords(t *testing.T) {
	ctx := context.Background()

	gen := staticGenerator{response: `["ev batteries", "charging network", "autopilot safety"]`}
	keywords := ExpandKeywords(ctx, gen, "tesla")
	if len(keywords) != 4 {
		t.Fatalf("ExpandKeywords() = %v, want original plus 3", keywords)
	}
	if keywords[0] != "tesla" {
		t.Errorf("first keyword = %q, want the original query", keywords[0])
	}
}

func TestExpandKeywordsMalformed(t *testing.T) {
	ctx := context.Background()

	gen := staticGenerator{response: "sorry, no list today"}
	keywords := ExpandKeywords(ctx, gen, "tesla")
	if len(keywords) != 1 || keywords[0] != "tesla" {
		t.Errorf("ExpandKeywords() on malformed output = %v, want just the query", keywords)
	}
}
