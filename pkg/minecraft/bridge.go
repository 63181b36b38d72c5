package minecraft

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Call timeouts. Connect and pathfinding are the slow paths; everything
// else is a quick sidecar round trip.
const (
	connectTimeout     = 30 * time.Second
	pathfindTimeout    = 30 * time.Second
	defaultCallTimeout = 10 * time.Second

	eventBuffer = 128
)

// request is the wire frame sent to the bot sidecar.
type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	BotID  string          `json:"botId,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response is the wire frame received from the sidecar. Frames carrying an
// Event instead of an ID are bot event-stream entries.
type response struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  *BotEvent       `json:"event,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Bridge is the GameClient implementation speaking JSON frames over a
// WebSocket connection to the mineflayer sidecar. One bridge carries the
// bots of every run of the runner that uses it; each bot belongs to a
// single run.
type Bridge struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan callResult
	events  map[string]chan BotEvent
	closed  bool
}

// Dial connects to the sidecar at wsURL and starts the read pump.
func Dial(ctx context.Context, wsURL string) (*Bridge, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bot bridge: %w", err)
	}
	b := &Bridge{
		conn:    conn,
		pending: make(map[string]chan callResult),
		events:  make(map[string]chan BotEvent),
	}
	go b.readPump()
	return b, nil
}

// Close tears down the connection and fails all pending calls.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for id, ch := range b.pending {
		ch <- callResult{err: fmt.Errorf("bridge closed")}
		delete(b.pending, id)
	}
	for botID, ch := range b.events {
		close(ch)
		delete(b.events, botID)
	}
	b.mu.Unlock()
	return b.conn.Close()
}

func (b *Bridge) readPump() {
	defer func() { _ = b.Close() }()
	for {
		var frame response
		if err := b.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("Bot bridge read failed", "error", err)
			}
			return
		}

		if frame.Event != nil {
			b.dispatchEvent(*frame.Event)
			continue
		}

		b.mu.Lock()
		ch, ok := b.pending[frame.ID]
		if ok {
			delete(b.pending, frame.ID)
		}
		b.mu.Unlock()
		if !ok {
			continue
		}
		if frame.Error != "" {
			ch <- callResult{err: fmt.Errorf("%s", frame.Error)}
		} else {
			ch <- callResult{result: frame.Result}
		}
	}
}

func (b *Bridge) dispatchEvent(ev BotEvent) {
	b.mu.Lock()
	ch, ok := b.events[ev.BotID]
	b.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		// Event stream consumers that stall lose the newest observations.
	}
}

func (b *Bridge) call(ctx context.Context, method, botID string, params any, timeout time.Duration) (json.RawMessage, error) {
	var encoded json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s params: %w", method, err)
		}
		encoded = raw
	}

	id := uuid.New().String()
	ch := make(chan callResult, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("bridge closed")
	}
	b.pending[id] = ch
	b.mu.Unlock()

	b.writeMu.Lock()
	err := b.conn.WriteJSON(request{ID: id, Method: method, BotID: botID, Params: encoded})
	b.writeMu.Unlock()
	if err != nil {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%s failed: %w", method, res.err)
		}
		return res.result, nil
	case <-timer.C:
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return nil, fmt.Errorf("%s timed out after %s", method, timeout)
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (b *Bridge) CreateBot(ctx context.Context, opts SpawnOptions) (string, error) {
	params := map[string]any{
		"username": opts.Username,
		"host":     opts.Host,
		"port":     opts.Port,
	}
	if opts.Version != "" {
		params["version"] = opts.Version
	}
	if opts.SpawnTeleport != nil {
		params["spawnTeleport"] = opts.SpawnTeleport
	}

	raw, err := b.call(ctx, "createBot", "", params, connectTimeout)
	if err != nil {
		return "", err
	}
	var result struct {
		BotID string `json:"botId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to decode createBot result: %w", err)
	}

	b.mu.Lock()
	b.events[result.BotID] = make(chan BotEvent, eventBuffer)
	b.mu.Unlock()
	return result.BotID, nil
}

func (b *Bridge) DisconnectBot(ctx context.Context, botID string) error {
	_, err := b.call(ctx, "disconnectBot", botID, nil, defaultCallTimeout)

	b.mu.Lock()
	if ch, ok := b.events[botID]; ok {
		close(ch)
		delete(b.events, botID)
	}
	b.mu.Unlock()
	return err
}

func (b *Bridge) GetState(ctx context.Context, botID string) (*BotState, error) {
	raw, err := b.call(ctx, "getState", botID, nil, defaultCallTimeout)
	if err != nil {
		return nil, err
	}
	var state BotState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode bot state: %w", err)
	}
	return &state, nil
}

func (b *Bridge) LookAt(ctx context.Context, botID string, target Vec3) error {
	_, err := b.call(ctx, "lookAt", botID, target, defaultCallTimeout)
	return err
}

func (b *Bridge) WalkForward(ctx context.Context, botID string, duration time.Duration) error {
	params := map[string]any{"durationMs": duration.Milliseconds()}
	_, err := b.call(ctx, "walkForward", botID, params, duration+defaultCallTimeout)
	return err
}

func (b *Bridge) Jump(ctx context.Context, botID string) error {
	_, err := b.call(ctx, "jump", botID, nil, defaultCallTimeout)
	return err
}

func (b *Bridge) PathfindTo(ctx context.Context, botID string, target Vec3, arriveWithin float64) error {
	params := map[string]any{"target": target, "arriveWithin": arriveWithin}
	_, err := b.call(ctx, "pathfindTo", botID, params, pathfindTimeout)
	return err
}

func (b *Bridge) Dig(ctx context.Context, botID string, target Vec3) error {
	_, err := b.call(ctx, "dig", botID, target, pathfindTimeout)
	return err
}

func (b *Bridge) PlaceBlock(ctx context.Context, botID string, reference Vec3, face Vec3) error {
	params := map[string]any{"reference": reference, "face": face}
	_, err := b.call(ctx, "placeBlock", botID, params, defaultCallTimeout)
	return err
}

func (b *Bridge) Equip(ctx context.Context, botID, itemName, slot string) error {
	params := map[string]any{"itemName": itemName, "slot": slot}
	_, err := b.call(ctx, "equip", botID, params, defaultCallTimeout)
	return err
}

func (b *Bridge) Attack(ctx context.Context, botID, targetName string) error {
	params := map[string]any{"target": targetName}
	_, err := b.call(ctx, "attack", botID, params, defaultCallTimeout)
	return err
}

func (b *Bridge) FindNearestBlock(ctx context.Context, botID string, match BlockMatcher, maxDistance float64) (*Block, error) {
	// The matcher cannot cross the wire; fetch candidates sorted by
	// distance and filter locally.
	params := map[string]any{"maxDistance": maxDistance}
	raw, err := b.call(ctx, "findBlocks", botID, params, defaultCallTimeout)
	if err != nil {
		return nil, err
	}
	var blocks []Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("failed to decode blocks: %w", err)
	}
	for i := range blocks {
		if match(blocks[i].Name) {
			return &blocks[i], nil
		}
	}
	return nil, nil
}

func (b *Bridge) BlockAt(ctx context.Context, botID string, pos Vec3) (*Block, error) {
	raw, err := b.call(ctx, "blockAt", botID, pos, defaultCallTimeout)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var block Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("failed to decode block: %w", err)
	}
	return &block, nil
}

func (b *Bridge) OpenContainer(ctx context.Context, botID string, pos Vec3) (ContainerHandle, error) {
	raw, err := b.call(ctx, "openContainer", botID, pos, defaultCallTimeout)
	if err != nil {
		return nil, err
	}
	var result struct {
		ContainerID string `json:"containerId"`
		Items       []Item `json:"items"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode container: %w", err)
	}
	return &bridgeContainer{bridge: b, botID: botID, containerID: result.ContainerID, items: result.Items}, nil
}

func (b *Bridge) SendChat(ctx context.Context, botID, message string) error {
	params := map[string]any{"message": message}
	_, err := b.call(ctx, "sendChat", botID, params, defaultCallTimeout)
	return err
}

func (b *Bridge) Events(botID string) <-chan BotEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.events[botID]; ok {
		return ch
	}
	// Unknown bot: return a closed channel so consumers exit immediately.
	ch := make(chan BotEvent)
	close(ch)
	return ch
}

// bridgeContainer is the remote container session.
type bridgeContainer struct {
	bridge      *Bridge
	botID       string
	containerID string
	items       []Item
}

func (c *bridgeContainer) Items() []Item {
	return c.items
}

func (c *bridgeContainer) Withdraw(ctx context.Context, itemName string, count int) (int, error) {
	params := map[string]any{"containerId": c.containerID, "itemName": itemName, "count": count}
	raw, err := c.bridge.call(ctx, "withdraw", c.botID, params, defaultCallTimeout)
	if err != nil {
		return 0, err
	}
	var result struct {
		Withdrawn int `json:"withdrawn"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("failed to decode withdraw result: %w", err)
	}
	return result.Withdrawn, nil
}

func (c *bridgeContainer) Close(ctx context.Context) error {
	params := map[string]any{"containerId": c.containerID}
	_, err := c.bridge.call(ctx, "closeContainer", c.botID, params, defaultCallTimeout)
	return err
}
