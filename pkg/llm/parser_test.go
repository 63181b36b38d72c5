package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripThinkBlocks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no think block",
			input:    `{"reasoning":"go"}`,
			expected: `{"reasoning":"go"}`,
		},
		{
			name:     "leading think block",
			input:    "<think>hmm, what should I do</think>\n{\"reasoning\":\"go\"}",
			expected: `{"reasoning":"go"}`,
		},
		{
			name:     "multiline think block",
			input:    "<think>line one\nline two</think>rest",
			expected: "rest",
		},
		{
			name:     "multiple think blocks",
			input:    "<think>a</think>x<think>b</think>y",
			expected: "xy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripThinkBlocks(tt.input))
		})
	}
}

func TestUnwrapCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fence",
			input:    `{"a":1}`,
			expected: `{"a":1}`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "fence with surrounding prose",
			input:    "Here you go:\n```json\n{\"a\":1}\n```\nDone.",
			expected: `{"a":1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, UnwrapCodeFences(tt.input))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, ExtractJSONObject(`{"a":1}`))
	})
	t.Run("object with prose", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, ExtractJSONObject(`Sure! {"a":1} hope that helps`))
	})
	t.Run("nested objects", func(t *testing.T) {
		assert.Equal(t, `{"a":{"b":2}}`, ExtractJSONObject(`{"a":{"b":2}} trailing`))
	})
	t.Run("braces inside strings", func(t *testing.T) {
		assert.Equal(t, `{"a":"}{"}`, ExtractJSONObject(`{"a":"}{"}`))
	})
	t.Run("no object", func(t *testing.T) {
		assert.Equal(t, "", ExtractJSONObject("nothing here"))
	})
	t.Run("unbalanced", func(t *testing.T) {
		assert.Equal(t, "", ExtractJSONObject(`{"a":1`))
	})
}

func TestParseDecision(t *testing.T) {
	t.Run("clean json", func(t *testing.T) {
		d, err := ParseDecision(`{"reasoning":"build","actions":[{"type":"jump"}],"chat":"hi","speak":null}`)
		require.NoError(t, err)
		assert.Equal(t, "build", d.Reasoning)
		assert.Equal(t, []string{"jump"}, d.ActionTypes())
		assert.Equal(t, "hi", d.Chat)
		assert.Empty(t, d.Speak)
	})

	t.Run("prose plus fenced json with string coordinates", func(t *testing.T) {
		// The malformed-reply shape the loop must survive.
		input := "Plan: let's explore.\n```json\n{\"reasoning\":\"go\",\"actions\":[{\"type\":\"move-to\",\"x\":\"10\",\"y\":64,\"z\":20}],\"chat\":null,\"speak\":null}\n```"
		d, err := ParseDecision(input)
		require.NoError(t, err)
		require.Len(t, d.Actions, 1)
		assert.Equal(t, "move-to", d.Actions[0].Type)
		assert.Equal(t, 10.0, d.Actions[0].X)
		assert.Equal(t, 64.0, d.Actions[0].Y)
		assert.Equal(t, 20.0, d.Actions[0].Z)
		assert.Equal(t, []string{"move-to"}, d.ActionTypes())
	})

	t.Run("think block before json", func(t *testing.T) {
		d, err := ParseDecision("<think>should I dig?</think>{\"reasoning\":\"dig\",\"actions\":[{\"type\":\"dig\",\"x\":1,\"y\":2,\"z\":3}]}")
		require.NoError(t, err)
		require.Len(t, d.Actions, 1)
		assert.Equal(t, "dig", d.Actions[0].Type)
	})

	t.Run("non-numeric coordinates drop the action", func(t *testing.T) {
		d, err := ParseDecision(`{"reasoning":"?","actions":[{"type":"move-to","x":"north","y":64,"z":20},{"type":"jump"}]}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"jump"}, d.ActionTypes())
	})

	t.Run("actions without string type are dropped", func(t *testing.T) {
		d, err := ParseDecision(`{"reasoning":"?","actions":[{"type":7},{"x":1},{"type":"jump"}]}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"jump"}, d.ActionTypes())
	})

	t.Run("no json at all", func(t *testing.T) {
		_, err := ParseDecision("I refuse to answer in JSON.")
		assert.Error(t, err)
	})

	t.Run("empty decision detected", func(t *testing.T) {
		d, err := ParseDecision(`{"reasoning":"thinking","actions":[],"chat":null}`)
		require.NoError(t, err)
		assert.True(t, d.IsEmpty())
	})

	t.Run("chat makes a decision non-empty", func(t *testing.T) {
		d, err := ParseDecision(`{"reasoning":"talk","actions":[],"chat":"hello"}`)
		require.NoError(t, err)
		assert.False(t, d.IsEmpty())
	})
}

// Re-feeding the parser its own cleaned output must produce the same
// decision.
func TestParseDecisionIdempotent(t *testing.T) {
	input := "Plan first.\n```json\n{\"reasoning\":\"go\",\"actions\":[{\"type\":\"move-to\",\"x\":\"10\",\"y\":64,\"z\":20}],\"chat\":\"on my way\",\"speak\":null}\n```"
	first, err := ParseDecision(input)
	require.NoError(t, err)

	encoded, err := json.Marshal(first)
	require.NoError(t, err)

	second, err := ParseDecision(string(encoded))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
