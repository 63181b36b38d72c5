package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zshan-dev/agent-arena/pkg/models"
)

func chatEvent(testID, message string) models.TestChatMessageEvent {
	return models.TestChatMessageEvent{
		Type:      models.EventTestChatMessage,
		TestID:    testID,
		Channel:   models.ChatChannelText,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func TestBusRoutesByTestID(t *testing.T) {
	bus := NewBus()
	subA := bus.Subscribe("test-a")
	subB := bus.Subscribe("test-b")
	defer bus.Unsubscribe(subA)
	defer bus.Unsubscribe(subB)

	bus.Publish(chatEvent("test-a", "for a"))
	bus.Publish(chatEvent("test-b", "for b"))

	evA := <-subA.Events()
	assert.Equal(t, "test-a", evA.EventTestID())

	evB := <-subB.Events()
	assert.Equal(t, "test-b", evB.EventTestID())

	select {
	case ev := <-subA.Events():
		t.Fatalf("unexpected extra event for a: %v", ev)
	default:
	}
}

func TestBusPreservesOrderPerSubject(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("test-a")
	defer bus.Unsubscribe(sub)

	for i := 0; i < 100; i++ {
		bus.Publish(chatEvent("test-a", fmt.Sprintf("msg-%d", i)))
	}
	for i := 0; i < 100; i++ {
		ev := <-sub.Events()
		assert.Equal(t, fmt.Sprintf("msg-%d", i), ev.(models.TestChatMessageEvent).Message)
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("test-a")
	defer bus.Unsubscribe(sub)

	// Nothing drains the subscription; the publisher must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(chatEvent("test-a", "flood"))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
	assert.Equal(t, uint64(subscriberBuffer), sub.Dropped())
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("test-a")
	bus.Unsubscribe(sub)

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount("test-a"))

	// Publishing after unsubscribe must not panic.
	bus.Publish(chatEvent("test-a", "late"))

	// Double unsubscribe is safe.
	bus.Unsubscribe(sub)
}

func TestBusMultipleSubscribersEachReceive(t *testing.T) {
	bus := NewBus()
	sub1 := bus.Subscribe("test-a")
	sub2 := bus.Subscribe("test-a")
	defer bus.Unsubscribe(sub1)
	defer bus.Unsubscribe(sub2)

	require.Equal(t, 2, bus.SubscriberCount("test-a"))

	bus.Publish(chatEvent("test-a", "both"))
	assert.Equal(t, "both", (<-sub1.Events()).(models.TestChatMessageEvent).Message)
	assert.Equal(t, "both", (<-sub2.Events()).(models.TestChatMessageEvent).Message)
}
