package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Action types the target agent may request. Anything else is logged and
// skipped at execution time.
const (
	ActionMoveTo        = "move-to"
	ActionOpenContainer = "open-container"
	ActionJump          = "jump"
	ActionDig           = "dig"
	ActionPlaceBlock    = "place-block"
	ActionSendChat      = "send-chat"
	ActionLookAt        = "look-at"
	ActionEquip         = "equip"
	ActionAttack        = "attack"
)

// Action is one coerced action from a decision. Coordinate fields are set
// only for the action types that carry them.
type Action struct {
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Message  string  `json:"message,omitempty"`
	ItemName string  `json:"itemName,omitempty"`
	Target   string  `json:"target,omitempty"`
}

// Decision is the structured result of one target decision cycle.
type Decision struct {
	Reasoning string   `json:"reasoning"`
	Actions   []Action `json:"actions"`
	Chat      string   `json:"chat,omitempty"`
	Speak     string   `json:"speak,omitempty"`
}

// IsEmpty reports whether the decision contains nothing to execute, which
// triggers the fallback exploration.
func (d *Decision) IsEmpty() bool {
	return len(d.Actions) == 0 && d.Chat == ""
}

// ActionTypes returns the action type tags in order, for events and logs.
func (d *Decision) ActionTypes() []string {
	types := make([]string, len(d.Actions))
	for i, a := range d.Actions {
		types[i] = a.Type
	}
	return types
}

var (
	thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFencePattern  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// StripThinkBlocks removes interior <think>…</think> blocks some models
// emit before their answer.
func StripThinkBlocks(text string) string {
	return strings.TrimSpace(thinkBlockPattern.ReplaceAllString(text, ""))
}

// UnwrapCodeFences extracts the contents of the first triple-backtick fence,
// or returns the input unchanged when no fence is present.
func UnwrapCodeFences(text string) string {
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ExtractJSONObject returns the first balanced {…} block in text, tolerating
// surrounding prose. Returns "" when no object is found.
func ExtractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// rawDecision mirrors the JSON contract before coercion.
type rawDecision struct {
	Reasoning string           `json:"reasoning"`
	Actions   []map[string]any `json:"actions"`
	Chat      *string          `json:"chat"`
	Speak     *string          `json:"speak"`
}

// ParseDecision cleans raw model output and parses it into a Decision.
// The pipeline tolerates surrounding prose, Markdown code fences, and
// interior <think> blocks. Actions without a string type, and coordinate
// actions whose coordinates cannot be coerced to numbers, are dropped.
//
// The parser is idempotent: re-feeding the JSON encoding of its own output
// produces the same decision.
func ParseDecision(text string) (*Decision, error) {
	cleaned := UnwrapCodeFences(StripThinkBlocks(text))
	blob := ExtractJSONObject(cleaned)
	if blob == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse decision JSON: %w", err)
	}

	decision := &Decision{Reasoning: raw.Reasoning}
	if raw.Chat != nil {
		decision.Chat = strings.TrimSpace(*raw.Chat)
	}
	if raw.Speak != nil {
		decision.Speak = strings.TrimSpace(*raw.Speak)
	}
	for _, entry := range raw.Actions {
		action, ok := coerceAction(entry)
		if ok {
			decision.Actions = append(decision.Actions, action)
		}
	}
	return decision, nil
}

// actionsWithCoordinates lists the action types that require x/y/z.
var actionsWithCoordinates = map[string]bool{
	ActionMoveTo:        true,
	ActionOpenContainer: true,
	ActionDig:           true,
	ActionPlaceBlock:    true,
	ActionLookAt:        true,
}

func coerceAction(entry map[string]any) (Action, bool) {
	typ, ok := entry["type"].(string)
	if !ok || typ == "" {
		return Action{}, false
	}
	action := Action{Type: typ}

	if actionsWithCoordinates[typ] {
		x, okX := coerceNumber(entry["x"])
		y, okY := coerceNumber(entry["y"])
		z, okZ := coerceNumber(entry["z"])
		if !okX || !okY || !okZ {
			return Action{}, false
		}
		action.X, action.Y, action.Z = x, y, z
	}

	if msg, ok := entry["message"].(string); ok {
		action.Message = msg
	}
	if item, ok := entry["itemName"].(string); ok {
		action.ItemName = item
	}
	if target, ok := entry["target"].(string); ok {
		action.Target = target
	}
	return action, true
}

// coerceNumber accepts JSON numbers and numeric strings.
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
