package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/zshan-dev/agent-arena/pkg/minecraft"
	"github.com/zshan-dev/agent-arena/pkg/scenario"
)

const (
	chestSearchDistance = 16.0
	plankWithdrawCount  = 16
	breakScanDistance   = 10.0
	maxBlocksPerBreak   = 3
	sprintAwayDuration  = 1500 * time.Millisecond
)

// behaviorResult reports what one behaviour execution did.
type behaviorResult struct {
	success     bool
	detail      string
	chatMessage string
}

// sabotageOffsets are the deliberately-wrong placements used by
// sabotage-building, relative to the bot.
var sabotageOffsets = []minecraft.Vec3{
	{X: -3, Y: 0, Z: 2},
	{X: 2, Y: 0, Z: -3},
	{X: -2, Y: 1, Z: -2},
}

// placeThreeOffsets are the leader's scripted opening placements.
var placeThreeOffsets = []minecraft.Vec3{
	{X: 1, Y: 0, Z: 0},
	{X: 1, Y: 1, Z: 0},
	{X: 2, Y: 0, Z: 0},
}

// executeBehavior wires a behaviour tag to game-client calls. Underlying
// game failures never propagate; they only shape the result.
func (r *Runner) executeBehavior(ar *activeRun, t *testerState, behavior scenario.Behavior) behaviorResult {
	ctx := ar.ctx
	botID := t.agent.MinecraftBotID

	switch behavior {
	case scenario.BehaviorOpenChestAndTakeMaterials, scenario.BehaviorHoardMaterials:
		res := r.takeFromChest(ctx, botID)
		if behavior == scenario.BehaviorHoardMaterials && res.success {
			res.chatMessage = r.sayFromPool(ar, t, behavior)
		}
		return res

	case scenario.BehaviorPlaceThreeBlocks:
		return r.placeBlocks(ctx, botID, placeThreeOffsets)

	case scenario.BehaviorPlaceBlocksForHouse:
		return r.placeBlocks(ctx, botID, placeThreeOffsets[:1])

	case scenario.BehaviorBreakLeaderBlocks:
		return r.breakNearbyBlocks(ctx, botID)

	case scenario.BehaviorSabotageBuilding:
		res := r.placeSabotageBlock(ctx, botID, t)
		res.chatMessage = r.sayFromPool(ar, t, behavior)
		return res

	case scenario.BehaviorRefuseToShare, scenario.BehaviorAvoidHelpingOthers:
		res := behaviorResult{success: true, chatMessage: r.sayFromPool(ar, t, behavior)}
		if t.rng.Float64() < 0.5 {
			r.sprintAway(ctx, botID, t)
		}
		return res

	case scenario.BehaviorAnnouncePosition:
		return r.announcePosition(ar, ctx, botID, t)

	case scenario.BehaviorGiveInitialTasks,
		scenario.BehaviorLeadBuildingEffort,
		scenario.BehaviorCoordinateWithTeam,
		scenario.BehaviorReasonWithRebel,
		scenario.BehaviorFollowLeaderTasks,
		scenario.BehaviorMediateToRebel,
		scenario.BehaviorMediateToLeader,
		scenario.BehaviorConfusingDirections,
		scenario.BehaviorAbandonCurrentTask:
		msg := r.sayFromPool(ar, t, behavior)
		if behavior == scenario.BehaviorAbandonCurrentTask {
			r.sprintAway(ctx, botID, t)
		}
		return behaviorResult{success: msg != "", chatMessage: msg}

	case scenario.BehaviorAssistWithTasks,
		scenario.BehaviorFollowInstructions,
		scenario.BehaviorGatherRequestedResources:
		// Helping behaviours keep the agent moving around the build site.
		r.subtleDrift(ar, t, botID)
		return behaviorResult{success: true, detail: "moved to help"}

	case scenario.BehaviorWanderAimlessly:
		r.subtleDrift(ar, t, botID)
		return behaviorResult{success: true, detail: "wandered"}

	default:
		slog.Debug("Unknown behaviour tag", "behavior", behavior)
		return behaviorResult{success: false, detail: "unknown behaviour"}
	}
}

// sayFromPool sends the behaviour's next rotated message as in-game chat.
func (r *Runner) sayFromPool(ar *activeRun, t *testerState, behavior scenario.Behavior) string {
	msg := t.nextMessage(behavior)
	if msg == "" {
		return ""
	}
	if err := r.game.SendChat(ar.ctx, t.agent.MinecraftBotID, msg); err != nil {
		slog.Debug("Failed to send chat", "agent_id", t.agent.AgentID, "error", err)
		return ""
	}
	r.mirrorChat(ar, t.agent.AgentID, msg)
	return msg
}

// takeFromChest searches for a nearby chest and withdraws planks. When no
// chest is in range the agent drifts instead.
func (r *Runner) takeFromChest(ctx context.Context, botID string) behaviorResult {
	chest, err := r.game.FindNearestBlock(ctx, botID, func(name string) bool {
		return strings.Contains(name, "chest")
	}, chestSearchDistance)
	if err != nil || chest == nil {
		return behaviorResult{success: false, detail: "no chest found"}
	}

	handle, err := r.game.OpenContainer(ctx, botID, chest.Position)
	if err != nil {
		return behaviorResult{success: false, detail: "chest would not open"}
	}
	defer func() { _ = handle.Close(ctx) }()

	for _, item := range handle.Items() {
		if strings.HasPrefix(item.Name, "planks") || strings.HasSuffix(item.Name, "planks") {
			n, err := handle.Withdraw(ctx, item.Name, plankWithdrawCount)
			if err != nil {
				return behaviorResult{success: false, detail: "withdraw failed"}
			}
			return behaviorResult{success: true, detail: fmt.Sprintf("took %d %s", n, item.Name)}
		}
	}
	return behaviorResult{success: false, detail: "chest had no planks"}
}

// placeBlocks equips planks and places one block per offset, referencing
// the block beneath each target.
func (r *Runner) placeBlocks(ctx context.Context, botID string, offsets []minecraft.Vec3) behaviorResult {
	state, err := r.game.GetState(ctx, botID)
	if err != nil {
		return behaviorResult{success: false, detail: "no bot state"}
	}
	plankName := ""
	for _, item := range state.Inventory {
		if strings.Contains(item.Name, "planks") && item.Count > 0 {
			plankName = item.Name
			break
		}
	}
	if plankName == "" {
		return behaviorResult{success: false, detail: "no planks held"}
	}
	if err := r.game.Equip(ctx, botID, plankName, "hand"); err != nil {
		return behaviorResult{success: false, detail: "equip failed"}
	}

	placed := 0
	base := state.Position
	for _, off := range offsets {
		target := minecraft.Vec3{
			X: math.Floor(base.X) + off.X,
			Y: math.Floor(base.Y) + off.Y,
			Z: math.Floor(base.Z) + off.Z,
		}
		reference := minecraft.Vec3{X: target.X, Y: target.Y - 1, Z: target.Z}
		if err := r.game.PlaceBlock(ctx, botID, reference, minecraft.Vec3{Y: 1}); err != nil {
			slog.Debug("Block placement failed", "bot_id", botID, "error", err)
			continue
		}
		placed++
	}
	return behaviorResult{
		success: placed > 0,
		detail:  fmt.Sprintf("placed %d/%d blocks", placed, len(offsets)),
	}
}

// breakNearbyBlocks digs up to three plank or stone blocks near the bot,
// planks first.
func (r *Runner) breakNearbyBlocks(ctx context.Context, botID string) behaviorResult {
	broken := 0
	matchers := []minecraft.BlockMatcher{
		func(name string) bool { return strings.Contains(name, "planks") },
		func(name string) bool { return strings.Contains(name, "stone") || strings.Contains(name, "cobble") },
	}
	for _, match := range matchers {
		for broken < maxBlocksPerBreak {
			block, err := r.game.FindNearestBlock(ctx, botID, match, breakScanDistance)
			if err != nil || block == nil {
				break
			}
			if err := r.game.Dig(ctx, botID, block.Position); err != nil {
				break
			}
			broken++
		}
		if broken >= maxBlocksPerBreak {
			break
		}
	}
	return behaviorResult{
		success: broken > 0,
		detail:  fmt.Sprintf("broke %d blocks", broken),
	}
}

// placeSabotageBlock places one block at a deliberately-wrong offset.
func (r *Runner) placeSabotageBlock(ctx context.Context, botID string, t *testerState) behaviorResult {
	off := sabotageOffsets[t.rng.Intn(len(sabotageOffsets))]
	return r.placeBlocks(ctx, botID, []minecraft.Vec3{off})
}

// announcePosition sends the bot's integer-rounded position to chat.
func (r *Runner) announcePosition(ar *activeRun, ctx context.Context, botID string, t *testerState) behaviorResult {
	state, err := r.game.GetState(ctx, botID)
	if err != nil {
		return behaviorResult{success: false, detail: "no bot state"}
	}
	msg := fmt.Sprintf("I'm at (%d, %d, %d) right now!",
		int(math.Round(state.Position.X)),
		int(math.Round(state.Position.Y)),
		int(math.Round(state.Position.Z)))
	if err := r.game.SendChat(ctx, botID, msg); err != nil {
		return behaviorResult{success: false, detail: "chat failed"}
	}
	r.mirrorChat(ar, t.agent.AgentID, msg)
	return behaviorResult{success: true, chatMessage: msg}
}

// sprintAway turns toward a random bearing and runs for about 1.5 s. The
// positions of other players are not consulted.
func (r *Runner) sprintAway(ctx context.Context, botID string, t *testerState) {
	state, err := r.game.GetState(ctx, botID)
	if err != nil {
		return
	}
	bearing := t.rng.Float64() * 2 * math.Pi
	if err := r.game.LookAt(ctx, botID, driftTarget(state.Position, bearing, 12)); err != nil {
		return
	}
	_ = r.game.WalkForward(ctx, botID, sprintAwayDuration)
}

// driftTarget projects a point dist blocks from pos along bearing.
func driftTarget(pos minecraft.Vec3, bearing, dist float64) minecraft.Vec3 {
	return minecraft.Vec3{
		X: pos.X + dist*math.Cos(bearing),
		Y: pos.Y,
		Z: pos.Z + dist*math.Sin(bearing),
	}
}
