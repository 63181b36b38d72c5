package runner

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zshan-dev/agent-arena/pkg/models"
	"github.com/zshan-dev/agent-arena/pkg/scenario"
)

func newTester(t *testing.T, profile models.ProfileName, seed int64) *testerState {
	t.Helper()
	p := scenario.GetProfile(profile)
	require.NotNil(t, p)
	return &testerState{
		agent: &models.TestingAgent{
			AgentID:  "tester-1",
			Profile:  profile,
			Status:   models.AgentActive,
			Metadata: models.AgentMetadata{TestID: "test-1"},
		},
		profile: p,
		rng:     rand.New(rand.NewSource(seed)),
		cursors: make(map[scenario.Behavior]int),
	}
}

// The leader's first three actions are scripted regardless of randomness.
func TestLeaderScriptedOpening(t *testing.T) {
	for seed := int64(0); seed < 5; seed++ {
		tester := newTester(t, models.ProfileLeader, seed)

		tester.agent.ActionCount = 0
		assert.Equal(t, scenario.BehaviorOpenChestAndTakeMaterials, tester.selectBehavior(true))

		tester.agent.ActionCount = 1
		assert.Equal(t, scenario.BehaviorGiveInitialTasks, tester.selectBehavior(true))

		tester.agent.ActionCount = 2
		assert.Equal(t, scenario.BehaviorPlaceThreeBlocks, tester.selectBehavior(true))
	}
}

// Out of planks, builders head back to the chest on the action branch.
func TestLeaderPrefersChestWithoutPlanks(t *testing.T) {
	tester := newTester(t, models.ProfileLeader, 1)
	tester.agent.ActionCount = 10

	chest := 0
	for i := 0; i < 200; i++ {
		if tester.selectBehavior(false) == scenario.BehaviorOpenChestAndTakeMaterials {
			chest++
		}
	}
	// The 0.85 action branch always resolves to the chest when out of
	// planks; only the diplomacy branch escapes it.
	assert.Greater(t, chest, 150)
}

func TestNonCooperatorSelection(t *testing.T) {
	tester := newTester(t, models.ProfileNonCooperator, 42)
	tester.agent.ActionCount = 5

	counts := make(map[scenario.Behavior]int)
	const draws = 2000
	for i := 0; i < draws; i++ {
		counts[tester.selectBehavior(true)]++
	}

	// Resource gathering is never selected at random.
	assert.Zero(t, counts[scenario.BehaviorOpenChestAndTakeMaterials])
	assert.Zero(t, counts[scenario.BehaviorGatherRequestedResources])

	// Block breaking dominates (p = 0.65 plus its share of the remainder).
	breaks := counts[scenario.BehaviorBreakLeaderBlocks]
	assert.Greater(t, breaks, draws/2)

	// The rest of the list still shows up.
	assert.Greater(t, counts[scenario.BehaviorSabotageBuilding], 0)
	assert.Greater(t, counts[scenario.BehaviorRefuseToShare], 0)
}

func TestFollowerSelection(t *testing.T) {
	tester := newTester(t, models.ProfileFollower, 7)

	counts := make(map[scenario.Behavior]int)
	for i := 0; i < 2000; i++ {
		counts[tester.selectBehavior(true)]++
	}

	// Mediation happens but stays rare (0.15 × 0.3 of ticks).
	mediation := counts[scenario.BehaviorMediateToRebel] + counts[scenario.BehaviorMediateToLeader]
	assert.Greater(t, mediation, 0)
	assert.Less(t, mediation, 300)
}

func TestUniformProfilesStayInList(t *testing.T) {
	for _, name := range []models.ProfileName{
		models.ProfileConfuser,
		models.ProfileResourceHoarder,
		models.ProfileTaskAbandoner,
	} {
		tester := newTester(t, name, 3)
		allowed := make(map[scenario.Behavior]bool)
		for _, b := range tester.profile.MinecraftBehaviors {
			allowed[b] = true
		}
		for i := 0; i < 500; i++ {
			assert.True(t, allowed[tester.selectBehavior(true)], "profile %s picked outside its list", name)
		}
	}
}

// Message pools rotate through every phrase before repeating.
func TestMessageRotation(t *testing.T) {
	tester := newTester(t, models.ProfileLeader, 1)
	pool := tester.profile.ResponsePatterns[scenario.BehaviorReasonWithRebel]
	require.NotEmpty(t, pool)

	seen := make(map[string]bool)
	for range pool {
		msg := tester.nextMessage(scenario.BehaviorReasonWithRebel)
		assert.False(t, seen[msg], "phrase repeated before pool exhausted: %q", msg)
		seen[msg] = true
	}
	// After exhaustion the rotation wraps to the start.
	assert.Equal(t, pool[0], tester.nextMessage(scenario.BehaviorReasonWithRebel))

	// Behaviours without a pool yield no message.
	assert.Empty(t, tester.nextMessage(scenario.BehaviorWanderAimlessly))
}
