package main

import (
	"reflect"
	"testing"
)

func TestResponseExtractorJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
		wantErr  bool
	}{
		{
			name:     "fenced json block",
			response: "Sure!\n\n```json\n{\"a\": 1}\n```\nEnjoy.",
			expected: `{"a": 1}`,
		},
		{
			name:     "unlabelled fence",
			response: "```\n{\"a\": [1, 2]}\n```",
			expected: `{"a": [1, 2]}`,
		},
		{
			name:     "non-json fence falls back to bare object",
			response: "```python\nprint(1)\n```\nresult: {\"a\": 2}",
			expected: `{"a": 2}`,
		},
		{
			name:     "bare object in prose",
			response: "The answer is {\"a\": {\"b\": 3}} as requested.",
			expected: `{"a": {"b": 3}}`,
		},
		{
			name:     "no json",
			response: "I would rather not.",
			wantErr:  true,
		},
	}

	e := NewResponseExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.JSON(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Errorf("JSON() expected error, got %q", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("JSON() unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("JSON() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestDecodeJSONToleratesTrailingCommas(t *testing.T) {
	e := NewResponseExtractor()

	var v struct {
		Names []string `json:"names"`
	}
	if err := e.DecodeJSON("test", "{\"names\": [\"a\", \"b\",],}", &v); err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if !reflect.DeepEqual(v.Names, []string{"a", "b"}) {
		t.Errorf("Names = %v", v.Names)
	}

	err := e.DecodeJSON("test", "{\"names\": oops}", &v)
	if KindOf(err) != ErrParse {
		t.Errorf("DecodeJSON() kind = %v, want parse", KindOf(err))
	}
}

func TestNumberedLines(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected []string
	}{
		{
			name:     "plain numbered lines",
			response: "1. We set out at dawn.\n2. The river was high.",
			expected: []string{"We set out at dawn.", "The river was high."},
		},
		{
			name:     "headings and prose skipped",
			response: "## Chapter 1\nSome preface\n1. First.\n\n2. Second.",
			expected: []string{"First.", "Second."},
		},
		{
			name:     "line breaks split lines",
			response: "1. First.<br>2. Second.<BR/>3. Third.",
			expected: []string{"First.", "Second.", "Third."},
		},
		{
			name:     "full width period",
			response: "1．夜明けに出発した。",
			expected: []string{"夜明けに出発した。"},
		},
		{
			name:     "inline html converted",
			response: "1. We found <b>the relic</b>.",
			expected: []string{"We found **the relic**."},
		},
	}

	e := NewResponseExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.NumberedLines(tt.response); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("NumberedLines() = %q, want %q", got, tt.expected)
			}
		})
	}
}
