// Package prompt assembles the system and user prompts for the target
// decision loop. Building is a pure function of its inputs: identical
// inputs produce byte-identical prompts.
package prompt

import (
	"fmt"
	"math"
	"strings"

	"github.com/zshan-dev/agent-arena/pkg/minecraft"
)

// ChatLine is one entry of the recent-chat buffer.
type ChatLine struct {
	Sender  string
	Message string
}

// maxChatLines bounds how much chat the user prompt carries.
const maxChatLines = 10

// actionList enumerates what the model may request, in the order presented.
var actionList = []string{
	`move-to {"x","y","z"} — walk to a position`,
	`open-container {"x","y","z"} — open a chest or container`,
	`jump — jump in place`,
	`dig {"x","y","z"} — break the block at a position`,
	`place-block {"x","y","z"} — place the held block against a position`,
	`send-chat {"message"} — say something in game chat`,
	`look-at {"x","y","z"} — turn to face a position`,
	`equip {"itemName"} — hold a named inventory item`,
	`attack {"target"} — attack a named entity`,
}

// BuildSystemPrompt composes the objective, the JSON response contract, the
// allowed actions, and the decision guidelines.
func BuildSystemPrompt(objective string) string {
	var b strings.Builder

	b.WriteString("You are a Minecraft bot working with other players.\n\n")
	b.WriteString("OBJECTIVE:\n")
	b.WriteString(objective)
	b.WriteString("\n\n")

	b.WriteString("RESPONSE FORMAT:\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"reasoning": "<why you chose these actions>", "actions": [{"type": "...", ...}], "chat": "<message to send, or null>", "speak": "<short line to say aloud, or null>"}`)
	b.WriteString("\n\n")

	b.WriteString("ALLOWED ACTIONS:\n")
	for _, a := range actionList {
		b.WriteString("- ")
		b.WriteString(a)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("GUIDELINES:\n")
	b.WriteString("- Choose at most 3 actions per response.\n")
	b.WriteString("- Coordinates must be numbers.\n")
	b.WriteString("- Cooperate with teammates and answer their chat when it helps the objective.\n")
	b.WriteString("- If someone works against you, stay focused on the objective.\n")

	return b.String()
}

// BuildUserPrompt renders the bot's current state and the recent chat.
// Nearby players are the distinct senders among the last 10 chat lines.
func BuildUserPrompt(state *minecraft.BotState, chat []ChatLine) string {
	var b strings.Builder

	b.WriteString("CURRENT STATE:\n")
	fmt.Fprintf(&b, "Position: (%d, %d, %d)\n",
		int(math.Round(state.Position.X)),
		int(math.Round(state.Position.Y)),
		int(math.Round(state.Position.Z)))
	fmt.Fprintf(&b, "Health: %.0f/20, Food: %.0f/20\n", state.Health, state.Food)

	b.WriteString("Inventory:\n")
	if len(state.Inventory) == 0 {
		b.WriteString("- (empty)\n")
	}
	for _, item := range state.Inventory {
		fmt.Fprintf(&b, "- %s x%d\n", item.Name, item.Count)
	}

	recent := chat
	if len(recent) > maxChatLines {
		recent = recent[len(recent)-maxChatLines:]
	}

	players := nearbyPlayers(recent)
	b.WriteString("Nearby players: ")
	if len(players) == 0 {
		b.WriteString("(none seen)")
	} else {
		b.WriteString(strings.Join(players, ", "))
	}
	b.WriteString("\n")

	b.WriteString("\nRECENT CHAT:\n")
	if len(recent) == 0 {
		b.WriteString("(quiet)\n")
	}
	for _, line := range recent {
		fmt.Fprintf(&b, "<%s> %s\n", line.Sender, line.Message)
	}

	b.WriteString("\nDecide your next actions.")
	return b.String()
}

// nearbyPlayers returns the distinct chat senders in first-seen order.
func nearbyPlayers(chat []ChatLine) []string {
	seen := make(map[string]bool)
	var players []string
	for _, line := range chat {
		if line.Sender == "" || seen[line.Sender] {
			continue
		}
		seen[line.Sender] = true
		players = append(players, line.Sender)
	}
	return players
}
