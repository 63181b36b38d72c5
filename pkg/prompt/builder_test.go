package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zshan-dev/agent-arena/pkg/minecraft"
)

func testState() *minecraft.BotState {
	return &minecraft.BotState{
		Position: minecraft.Vec3{X: 10.6, Y: 64.2, Z: -3.4},
		Health:   18,
		Food:     15,
		Inventory: []minecraft.Item{
			{Slot: 0, Name: "oak_planks", Count: 12},
			{Slot: 1, Name: "stone", Count: 4},
		},
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	objective := "Build a house with your team."
	p := BuildSystemPrompt(objective)

	assert.Contains(t, p, objective)
	assert.Contains(t, p, `"reasoning"`)
	assert.Contains(t, p, `"actions"`)
	assert.Contains(t, p, "at most 3 actions")

	// Every allowed action is enumerated.
	for _, action := range []string{"move-to", "open-container", "jump", "dig",
		"place-block", "send-chat", "look-at", "equip", "attack"} {
		assert.Contains(t, p, action)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	chat := []ChatLine{
		{Sender: "leader-1", Message: "grab planks from the chest"},
		{Sender: "rebel-2", Message: "or don't"},
	}
	p := BuildUserPrompt(testState(), chat)

	assert.Contains(t, p, "Position: (11, 64, -3)")
	assert.Contains(t, p, "Health: 18/20, Food: 15/20")
	assert.Contains(t, p, "- oak_planks x12")
	assert.Contains(t, p, "- stone x4")
	assert.Contains(t, p, "Nearby players: leader-1, rebel-2")
	assert.Contains(t, p, "<leader-1> grab planks from the chest")
	assert.Contains(t, p, "<rebel-2> or don't")
}

func TestBuildUserPromptEmpty(t *testing.T) {
	p := BuildUserPrompt(&minecraft.BotState{Health: 20, Food: 20}, nil)
	assert.Contains(t, p, "(empty)")
	assert.Contains(t, p, "(none seen)")
	assert.Contains(t, p, "(quiet)")
}

func TestBuildUserPromptCapsChat(t *testing.T) {
	var chat []ChatLine
	for i := 0; i < 15; i++ {
		chat = append(chat, ChatLine{Sender: "a", Message: strings.Repeat("x", i+1)})
	}
	p := BuildUserPrompt(testState(), chat)

	// Only the last 10 lines survive.
	assert.NotContains(t, p, "<a> xxxxx\n")
	assert.Contains(t, p, "<a> xxxxxx\n")
	assert.Equal(t, 10, strings.Count(p, "<a> "))
}

// Identical inputs must produce byte-identical prompts.
func TestBuilderDeterministic(t *testing.T) {
	chat := []ChatLine{{Sender: "leader-1", Message: "hello"}}
	assert.Equal(t, BuildSystemPrompt("obj"), BuildSystemPrompt("obj"))
	assert.Equal(t, BuildUserPrompt(testState(), chat), BuildUserPrompt(testState(), chat))
}
