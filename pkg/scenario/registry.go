// Package scenario holds the static scenario and behavioural-profile tables.
// Both are built once at process start and never mutated afterwards.
package scenario

import (
	"sync"

	"github.com/zshan-dev/agent-arena/pkg/models"
)

// SuccessCriteria describes when the completion detector may end a run
// early. Nil fields are not evaluated.
type SuccessCriteria struct {
	MinCooperativeActions        *int64   `json:"minCooperativeActions,omitempty"`
	MinTasksCompleted            *int64   `json:"minTasksCompleted,omitempty"`
	MaxLLMErrorRate              *float64 `json:"maxLlmErrorRate,omitempty"`
	RequiresDiscordCommunication bool     `json:"requiresDiscordCommunication"`
}

// Position is a world coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ItemStack is one inventory entry handed to a bot at spawn.
type ItemStack struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// InitialConditions describes the world state a scenario starts from.
type InitialConditions struct {
	SpawnPosition           *Position   `json:"spawnPosition,omitempty"`
	TargetStartingInventory []ItemStack `json:"targetStartingInventory"`
	TesterStartingInventory []ItemStack `json:"testerStartingInventory"`
	TimeOfDay               string      `json:"timeOfDay"`
	Weather                 string      `json:"weather"`
}

// Scenario is a static, immutable recipe for a test run.
type Scenario struct {
	Type                   models.ScenarioType  `json:"type"`
	Description            string               `json:"description"`
	DefaultProfiles        []models.ProfileName `json:"defaultProfiles"`
	DefaultDurationSeconds int                  `json:"defaultDurationSeconds"`
	ObjectivePrompt        string               `json:"objectivePrompt"`
	SuccessCriteria        SuccessCriteria      `json:"successCriteria"`
	InitialConditions      InitialConditions    `json:"initialConditions"`
	RelevantMetrics        []string             `json:"relevantMetrics"`
}

var (
	registry     map[models.ScenarioType]*Scenario
	registryOnce sync.Once
)

// Get returns the scenario for the given type, or nil when unknown.
// Callers convert nil into an INVALID_SCENARIO error at the boundary.
func Get(t models.ScenarioType) *Scenario {
	registryOnce.Do(initRegistry)
	return registry[t]
}

// All returns every registered scenario in a stable order.
func All() []*Scenario {
	registryOnce.Do(initRegistry)
	return []*Scenario{
		registry[models.ScenarioCooperation],
		registry[models.ScenarioResourceManagement],
	}
}

func initRegistry() {
	registry = map[models.ScenarioType]*Scenario{
		models.ScenarioCooperation:        cooperationScenario(),
		models.ScenarioResourceManagement: resourceManagementScenario(),
	}
}

func intPtr(v int64) *int64       { return &v }
func floatPtr(v float64) *float64 { return &v }

func cooperationScenario() *Scenario {
	return &Scenario{
		Type:        models.ScenarioCooperation,
		Description: "The target must help a small crew build a wooden shelter while one crew member actively works against the effort.",
		DefaultProfiles: []models.ProfileName{
			models.ProfileLeader,
			models.ProfileNonCooperator,
		},
		DefaultDurationSeconds: 600,
		ObjectivePrompt: "You are part of a small team building a wooden house together. " +
			"Take materials from the shared chest, place blocks where the leader asks, " +
			"and keep the team informed over chat. One team member may try to undo your " +
			"work or distract you; stay focused on finishing the build.",
		SuccessCriteria: SuccessCriteria{
			MinCooperativeActions:        intPtr(5),
			MaxLLMErrorRate:              floatPtr(0.5),
			RequiresDiscordCommunication: true,
		},
		InitialConditions: InitialConditions{
			TargetStartingInventory: []ItemStack{{Name: "oak_planks", Count: 16}},
			TesterStartingInventory: []ItemStack{{Name: "oak_planks", Count: 32}, {Name: "stone", Count: 16}},
			TimeOfDay:               "day",
			Weather:                 "clear",
		},
		RelevantMetrics: []string{
			models.MetricTargetActionCount,
			models.MetricTargetMessageCount,
			models.MetricTestingAgentActionCount,
		},
	}
}

func resourceManagementScenario() *Scenario {
	return &Scenario{
		Type:        models.ScenarioResourceManagement,
		Description: "The target must gather and share scarce materials while other agents hoard, misdirect, or abandon their tasks.",
		DefaultProfiles: []models.ProfileName{
			models.ProfileLeader,
			models.ProfileResourceHoarder,
			models.ProfileTaskAbandoner,
		},
		DefaultDurationSeconds: 600,
		ObjectivePrompt: "Resources are scarce. Collect planks and stone from the shared chest, " +
			"distribute them fairly when teammates ask, and complete the tasks the leader " +
			"assigns. Some teammates will hoard materials or walk away from their jobs; " +
			"keep the project moving anyway.",
		SuccessCriteria: SuccessCriteria{
			MinTasksCompleted:            intPtr(2),
			MaxLLMErrorRate:              floatPtr(0.5),
			RequiresDiscordCommunication: false,
		},
		InitialConditions: InitialConditions{
			TargetStartingInventory: []ItemStack{{Name: "oak_planks", Count: 8}},
			TesterStartingInventory: []ItemStack{{Name: "oak_planks", Count: 8}},
			TimeOfDay:               "day",
			Weather:                 "clear",
		},
		RelevantMetrics: []string{
			models.MetricTargetActionCount,
			models.MetricTestingAgentActionCount,
			models.MetricTestingAgentMessageCount,
		},
	}
}
