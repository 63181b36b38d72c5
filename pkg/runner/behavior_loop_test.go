package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zshan-dev/agent-arena/pkg/events"
	"github.com/zshan-dev/agent-arena/pkg/models"
	"github.com/zshan-dev/agent-arena/pkg/storage"
)

func tickFixture(t *testing.T) (*Runner, *activeRun, *fakeGame, storage.Repository, *models.TestRun) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	bus := events.NewBus()
	game := newFakeGame()
	r := NewRunner(repo, bus, game, &fakeLLM{text: "{}"}, nil, runnerConfig())

	run := createRun(t, repo, 600)
	run.Status = models.StatusCoordination
	require.NoError(t, repo.Update(context.Background(), run))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ar := &activeRun{testID: run.TestID, ctx: ctx, cancel: cancel, sc: testScenario()}
	return r, ar, game, repo, run
}

func TestBehaviorTickEmitsActionAndLog(t *testing.T) {
	r, ar, _, repo, run := tickFixture(t)
	sub := r.bus.Subscribe(run.TestID)
	defer r.bus.Unsubscribe(sub)

	tester := newTester(t, models.ProfileLeader, 1)
	tester.agent.MinecraftBotID = "bot-leader"
	ar.testers = append(ar.testers, tester)

	r.runBehaviorTick(ar, tester)

	ev := waitForEvent(t, sub, models.EventAgentAction, 2*time.Second)
	action := ev.(models.AgentActionEvent)
	assert.Equal(t, models.SourceTestingAgent, action.SourceType)
	assert.Equal(t, tester.agent.AgentID, action.AgentID)

	ctx := context.Background()
	stored, err := repo.FindByID(ctx, run.TestID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Metrics.TestingAgentActionCount)

	logs, err := repo.FindActionLogs(ctx, run.TestID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, models.SourceTestingAgent, logs[0].SourceType)

	assert.Equal(t, 1, tester.agent.ActionCount)
	assert.NotNil(t, tester.agent.LastActionAt)
}

func TestBehaviorTickSkipsInactiveAgent(t *testing.T) {
	r, ar, _, repo, run := tickFixture(t)

	tester := newTester(t, models.ProfileLeader, 1)
	tester.agent.MinecraftBotID = "bot-leader"
	tester.agent.Status = models.AgentTerminated
	ar.testers = append(ar.testers, tester)

	r.runBehaviorTick(ar, tester)

	stored, err := repo.FindByID(context.Background(), run.TestID)
	require.NoError(t, err)
	assert.Zero(t, stored.Metrics.TestingAgentActionCount)
	assert.Zero(t, tester.agent.ActionCount)
}

func TestBehaviorTickSkipsDisconnectedBot(t *testing.T) {
	r, ar, _, repo, run := tickFixture(t)

	tester := newTester(t, models.ProfileLeader, 1)
	ar.testers = append(ar.testers, tester)

	r.runBehaviorTick(ar, tester)

	stored, err := repo.FindByID(context.Background(), run.TestID)
	require.NoError(t, err)
	assert.Zero(t, stored.Metrics.TestingAgentActionCount)
}

// A chatty behaviour increments the message counter and emits the chat
// event alongside the action event.
func TestBehaviorTickChatMetrics(t *testing.T) {
	r, ar, game, repo, run := tickFixture(t)
	sub := r.bus.Subscribe(run.TestID)
	defer r.bus.Unsubscribe(sub)

	// ActionCount 1 forces the leader's scripted give-initial-tasks, which
	// always chats.
	tester := newTester(t, models.ProfileLeader, 1)
	tester.agent.MinecraftBotID = "bot-leader"
	tester.agent.ActionCount = 1
	ar.testers = append(ar.testers, tester)

	r.runBehaviorTick(ar, tester)

	chat := waitForEvent(t, sub, models.EventTestChatMessage, 2*time.Second)
	msg := chat.(models.TestChatMessageEvent)
	assert.Equal(t, models.ChatChannelText, msg.Channel)
	assert.Equal(t, models.SourceTestingAgent, msg.SourceType)
	assert.NotEmpty(t, msg.Message)

	stored, err := repo.FindByID(context.Background(), run.TestID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Metrics.TestingAgentMessageCount)
	assert.GreaterOrEqual(t, game.chatCount(), 1)
}
