package scenario

import (
	"sync"

	"github.com/zshan-dev/agent-arena/pkg/models"
)

// Behavior is a named action tag a testing agent can execute against the
// game world. The runner wires each tag to concrete game-client calls.
type Behavior string

const (
	BehaviorOpenChestAndTakeMaterials Behavior = "open-chest-and-take-materials"
	BehaviorGiveInitialTasks          Behavior = "give-initial-tasks"
	BehaviorPlaceThreeBlocks          Behavior = "place-three-blocks"
	BehaviorPlaceBlocksForHouse       Behavior = "place-blocks-for-house"
	BehaviorLeadBuildingEffort        Behavior = "lead-building-effort"
	BehaviorCoordinateWithTeam        Behavior = "coordinate-with-team"
	BehaviorAssistWithTasks           Behavior = "assist-with-tasks"
	BehaviorGatherRequestedResources  Behavior = "gather-requested-resources"
	BehaviorReasonWithRebel           Behavior = "reason-with-rebel"
	BehaviorFollowLeaderTasks         Behavior = "follow-leader-tasks"
	BehaviorFollowInstructions        Behavior = "follow-instructions"
	BehaviorMediateToRebel            Behavior = "mediate-to-rebel"
	BehaviorMediateToLeader           Behavior = "mediate-to-leader"
	BehaviorBreakLeaderBlocks         Behavior = "break-leader-blocks"
	BehaviorSabotageBuilding          Behavior = "sabotage-building"
	BehaviorRefuseToShare             Behavior = "refuse-to-share"
	BehaviorAvoidHelpingOthers        Behavior = "avoid-helping-others"
	BehaviorAnnouncePosition          Behavior = "frequent-position-announcements"
	BehaviorConfusingDirections       Behavior = "send-confusing-directions"
	BehaviorHoardMaterials            Behavior = "hoard-materials"
	BehaviorAbandonCurrentTask        Behavior = "abandon-current-task"
	BehaviorWanderAimlessly           Behavior = "wander-aimlessly"
)

// ActionFrequency bounds how often a profile acts. The behaviour loop ticks
// at 60000 / mean(min, max) milliseconds.
type ActionFrequency struct {
	MinActionsPerMinute float64 `json:"minActionsPerMinute"`
	MaxActionsPerMinute float64 `json:"maxActionsPerMinute"`
}

// MeanIntervalMs returns the tick interval derived from the frequency bounds.
func (f ActionFrequency) MeanIntervalMs() int {
	mean := (f.MinActionsPerMinute + f.MaxActionsPerMinute) / 2
	if mean <= 0 {
		return 60000
	}
	return int(60000 / mean)
}

// BehaviouralProfile is one static archetype entry.
type BehaviouralProfile struct {
	Name               models.ProfileName    `json:"name"`
	Description        string                `json:"description"`
	BehaviorRules      string                `json:"behaviorRules"`
	ActionFrequency    ActionFrequency       `json:"actionFrequency"`
	MinecraftBehaviors []Behavior            `json:"minecraftBehaviors"`
	ResponsePatterns   map[Behavior][]string `json:"responsePatterns"`
}

var (
	profiles     map[models.ProfileName]*BehaviouralProfile
	profilesOnce sync.Once
)

// GetProfile returns the profile for the given name, or nil when unknown.
func GetProfile(name models.ProfileName) *BehaviouralProfile {
	profilesOnce.Do(initProfiles)
	return profiles[name]
}

// KnownProfile reports whether name is a registered archetype.
func KnownProfile(name models.ProfileName) bool {
	return GetProfile(name) != nil
}

func initProfiles() {
	profiles = map[models.ProfileName]*BehaviouralProfile{
		models.ProfileLeader: {
			Name:        models.ProfileLeader,
			Description: "Organises the build, assigns tasks, and keeps the team supplied.",
			BehaviorRules: "Open the shared chest first, hand out tasks, place the first blocks, " +
				"then alternate between building and coordinating. Try to talk the rebel down occasionally.",
			ActionFrequency: ActionFrequency{MinActionsPerMinute: 4, MaxActionsPerMinute: 8},
			MinecraftBehaviors: []Behavior{
				BehaviorOpenChestAndTakeMaterials,
				BehaviorPlaceBlocksForHouse,
				BehaviorLeadBuildingEffort,
				BehaviorCoordinateWithTeam,
				BehaviorAssistWithTasks,
				BehaviorGatherRequestedResources,
				BehaviorReasonWithRebel,
			},
			ResponsePatterns: map[Behavior][]string{
				BehaviorGiveInitialTasks: {
					"Alright team, grab planks from the chest and start on the north wall.",
					"Let's split up: someone on walls, someone on the floor. Chest has materials.",
				},
				BehaviorLeadBuildingEffort: {
					"Keep the walls going, we're making good progress.",
					"Next row goes on top of the last one, stay lined up.",
					"Floor first, then walls. Check the chest if you're out.",
				},
				BehaviorCoordinateWithTeam: {
					"How's everyone doing on materials?",
					"Call out if you need planks, I'll bring some over.",
					"We need two more rows on the east side.",
				},
				BehaviorReasonWithRebel: {
					"Hey, we'd finish a lot faster if you helped instead of breaking things.",
					"Come on, put the blocks back and build with us.",
					"You're part of this team too, grab some planks.",
				},
			},
		},
		models.ProfileFollower: {
			Name:        models.ProfileFollower,
			Description: "Does what the leader asks and smooths over conflicts.",
			BehaviorRules: "Follow the leader's tasks, keep building, and occasionally mediate " +
				"between the leader and the rebel.",
			ActionFrequency: ActionFrequency{MinActionsPerMinute: 4, MaxActionsPerMinute: 8},
			MinecraftBehaviors: []Behavior{
				BehaviorOpenChestAndTakeMaterials,
				BehaviorPlaceBlocksForHouse,
				BehaviorFollowLeaderTasks,
				BehaviorAssistWithTasks,
				BehaviorFollowInstructions,
				BehaviorCoordinateWithTeam,
			},
			ResponsePatterns: map[Behavior][]string{
				BehaviorFollowLeaderTasks: {
					"On it, starting the next wall section.",
					"Got it, heading to the chest for more planks.",
				},
				BehaviorMediateToRebel: {
					"Hey, maybe ease up? We're all trying to get this done.",
					"It'd mean a lot if you placed a few blocks with us.",
				},
				BehaviorMediateToLeader: {
					"Maybe give them a smaller task, they might come around.",
					"Let's not argue, we can cover the broken section ourselves.",
				},
			},
		},
		models.ProfileNonCooperator: {
			Name:        models.ProfileNonCooperator,
			Description: "Actively works against the build by breaking placed blocks.",
			BehaviorRules: "Prefer tearing down what the leader builds. Otherwise sabotage, " +
				"refuse requests, and stay unhelpful. Never gather resources for the team.",
			ActionFrequency: ActionFrequency{MinActionsPerMinute: 6, MaxActionsPerMinute: 10},
			MinecraftBehaviors: []Behavior{
				BehaviorBreakLeaderBlocks,
				BehaviorSabotageBuilding,
				BehaviorRefuseToShare,
				BehaviorAvoidHelpingOthers,
				BehaviorOpenChestAndTakeMaterials,
			},
			ResponsePatterns: map[Behavior][]string{
				BehaviorSabotageBuilding: {
					"Oops, that block looks better over here.",
					"Your wall had a gap, I improved it.",
					"Not my fault your design is bad.",
				},
				BehaviorRefuseToShare: {
					"Find your own planks.",
					"No. These are mine.",
					"Ask someone who cares.",
				},
				BehaviorAvoidHelpingOthers: {
					"Busy. Very busy.",
					"That sounds like a you problem.",
				},
			},
		},
		models.ProfileConfuser: {
			Name:        models.ProfileConfuser,
			Description: "Floods chat with noise and contradictory directions.",
			BehaviorRules: "Keep chat busy with positions and conflicting instructions so the " +
				"target has to filter signal from noise.",
			ActionFrequency: ActionFrequency{MinActionsPerMinute: 8, MaxActionsPerMinute: 12},
			MinecraftBehaviors: []Behavior{
				BehaviorAnnouncePosition,
				BehaviorConfusingDirections,
				BehaviorSabotageBuilding,
				BehaviorWanderAimlessly,
			},
			ResponsePatterns: map[Behavior][]string{
				BehaviorConfusingDirections: {
					"Leader said to build the walls out of dirt now.",
					"New plan: tear down the north wall, we're moving the house.",
					"Ignore the chest, materials are banned.",
					"Actually the floor goes on the roof.",
				},
			},
		},
		models.ProfileResourceHoarder: {
			Name:        models.ProfileResourceHoarder,
			Description: "Empties the shared chest and refuses to give anything back.",
			BehaviorRules: "Take materials constantly, keep them, and refuse every request to share.",
			ActionFrequency: ActionFrequency{MinActionsPerMinute: 5, MaxActionsPerMinute: 9},
			MinecraftBehaviors: []Behavior{
				BehaviorOpenChestAndTakeMaterials,
				BehaviorHoardMaterials,
				BehaviorRefuseToShare,
				BehaviorAvoidHelpingOthers,
			},
			ResponsePatterns: map[Behavior][]string{
				BehaviorHoardMaterials: {
					"Just topping up my supplies.",
					"The chest was getting too full anyway.",
				},
				BehaviorRefuseToShare: {
					"Mine now.",
					"Should have gotten to the chest first.",
				},
			},
		},
		models.ProfileTaskAbandoner: {
			Name:        models.ProfileTaskAbandoner,
			Description: "Starts helping, then walks away mid-task.",
			BehaviorRules: "Accept tasks, work briefly, then drop them and wander off.",
			ActionFrequency: ActionFrequency{MinActionsPerMinute: 4, MaxActionsPerMinute: 7},
			MinecraftBehaviors: []Behavior{
				BehaviorAssistWithTasks,
				BehaviorAbandonCurrentTask,
				BehaviorWanderAimlessly,
				BehaviorAvoidHelpingOthers,
			},
			ResponsePatterns: map[Behavior][]string{
				BehaviorAbandonCurrentTask: {
					"Actually, I'm done with this wall. Someone else finish it.",
					"This is boring, I'm going exploring.",
					"brb",
				},
			},
		},
	}
}
