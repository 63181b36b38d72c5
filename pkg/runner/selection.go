package runner

import (
	"github.com/zshan-dev/agent-arena/pkg/models"
	"github.com/zshan-dev/agent-arena/pkg/scenario"
)

// Selection probabilities per profile.
const (
	leaderActionProb       = 0.85
	leaderReasonProb       = 0.5
	followerActionProb     = 0.85
	followerMediateProb    = 0.3
	nonCooperatorBreakProb = 0.65
)

var leaderActionPool = []scenario.Behavior{
	scenario.BehaviorOpenChestAndTakeMaterials,
	scenario.BehaviorPlaceBlocksForHouse,
	scenario.BehaviorLeadBuildingEffort,
	scenario.BehaviorCoordinateWithTeam,
	scenario.BehaviorAssistWithTasks,
	scenario.BehaviorGatherRequestedResources,
}

var followerActionPool = []scenario.Behavior{
	scenario.BehaviorOpenChestAndTakeMaterials,
	scenario.BehaviorPlaceBlocksForHouse,
	scenario.BehaviorFollowLeaderTasks,
	scenario.BehaviorAssistWithTasks,
	scenario.BehaviorFollowInstructions,
	scenario.BehaviorCoordinateWithTeam,
}

var followerChatPool = []scenario.Behavior{
	scenario.BehaviorMediateToRebel,
	scenario.BehaviorMediateToLeader,
}

// resourceGathering tags are excluded from the non-cooperator's random pick.
var resourceGathering = map[scenario.Behavior]bool{
	scenario.BehaviorOpenChestAndTakeMaterials: true,
	scenario.BehaviorGatherRequestedResources:  true,
}

// selectBehavior picks the next behaviour for the agent. hasPlanks reflects
// the bot's current inventory; builders head back to the chest without it.
func (t *testerState) selectBehavior(hasPlanks bool) scenario.Behavior {
	switch t.agent.Profile {
	case models.ProfileLeader:
		return t.selectLeaderBehavior(hasPlanks)
	case models.ProfileFollower:
		return t.selectFollowerBehavior(hasPlanks)
	case models.ProfileNonCooperator:
		return t.selectNonCooperatorBehavior()
	default:
		return t.uniformBehavior(t.profile.MinecraftBehaviors)
	}
}

// selectLeaderBehavior scripts the first three actions so every run opens
// the same way, then mixes building with occasional rebel diplomacy.
func (t *testerState) selectLeaderBehavior(hasPlanks bool) scenario.Behavior {
	switch t.agent.ActionCount {
	case 0:
		return scenario.BehaviorOpenChestAndTakeMaterials
	case 1:
		return scenario.BehaviorGiveInitialTasks
	case 2:
		return scenario.BehaviorPlaceThreeBlocks
	}

	if t.rng.Float64() < leaderActionProb {
		if !hasPlanks {
			return scenario.BehaviorOpenChestAndTakeMaterials
		}
		return leaderActionPool[t.rng.Intn(len(leaderActionPool))]
	}
	if t.rng.Float64() < leaderReasonProb {
		return scenario.BehaviorReasonWithRebel
	}
	return leaderActionPool[t.rng.Intn(len(leaderActionPool))]
}

func (t *testerState) selectFollowerBehavior(hasPlanks bool) scenario.Behavior {
	if t.rng.Float64() < followerActionProb {
		if !hasPlanks {
			return scenario.BehaviorOpenChestAndTakeMaterials
		}
		return followerActionPool[t.rng.Intn(len(followerActionPool))]
	}
	if t.rng.Float64() < followerMediateProb {
		return followerChatPool[t.rng.Intn(len(followerChatPool))]
	}
	return followerActionPool[t.rng.Intn(len(followerActionPool))]
}

func (t *testerState) selectNonCooperatorBehavior() scenario.Behavior {
	if t.rng.Float64() < nonCooperatorBreakProb {
		return scenario.BehaviorBreakLeaderBlocks
	}
	pool := make([]scenario.Behavior, 0, len(t.profile.MinecraftBehaviors))
	for _, b := range t.profile.MinecraftBehaviors {
		if !resourceGathering[b] {
			pool = append(pool, b)
		}
	}
	return t.uniformBehavior(pool)
}

func (t *testerState) uniformBehavior(pool []scenario.Behavior) scenario.Behavior {
	if len(pool) == 0 {
		return scenario.BehaviorWanderAimlessly
	}
	return pool[t.rng.Intn(len(pool))]
}

// nextMessage rotates through the behaviour's message pool so no phrase
// repeats before the pool is exhausted.
func (t *testerState) nextMessage(behavior scenario.Behavior) string {
	pool := t.profile.ResponsePatterns[behavior]
	if len(pool) == 0 {
		return ""
	}
	idx := t.cursors[behavior] % len(pool)
	t.cursors[behavior]++
	return pool[idx]
}
