package datafeed

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finos/symphony-bdk-go/config"
	"github.com/finos/symphony-bdk-go/event"
	"github.com/finos/symphony-bdk-go/network"
	"github.com/finos/symphony-bdk-go/retry"
)

// Shared test fixtures for the package.

type stubSession struct{}

func (stubSession) SessionToken() string          { return "st" }
func (stubSession) KeyManagerToken() string       { return "kmt" }
func (stubSession) Refresh(context.Context) error { return nil }

type stubBotInfo struct {
	bot event.BotInfo
}

func (s stubBotInfo) BotInfo(context.Context) (event.BotInfo, error) {
	return s.bot, nil
}

func defaultBotInfo() stubBotInfo {
	return stubBotInfo{bot: event.BotInfo{UserID: 42, Username: "bot-user", DisplayName: "Bot"}}
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		Multiplier:      1.5,
		MaxInterval:     5 * time.Millisecond,
	}
}

func newAgentAPI(t *testing.T, rawURL string) *API {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(parsed.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	client, err := network.NewClient(config.ServerConfig{Scheme: parsed.Scheme, Host: host, Port: port}, network.Options{})
	require.NoError(t, err)
	return NewAPI(client, nil)
}

func newTestCore(bot event.BotInfo) *loopCore {
	core := newLoopCore(stubBotInfo{bot: bot}, nil)
	core.botInfo = bot
	core.taskCtx = context.Background()
	return &core
}

func messageEvent(id, initiator string) event.V4Event {
	return event.V4Event{
		ID:        id,
		Type:      event.TypeMessageSent,
		Initiator: &event.V4Initiator{User: &event.V4User{Username: initiator}},
		Payload: &event.V4Payload{
			MessageSent: &event.V4MessageSent{Message: &event.V4Message{MessageID: "msg-" + id}},
		},
	}
}

func TestDispatchBatchAllowsAckWhenClean(t *testing.T) {
	core := newTestCore(event.BotInfo{Username: "bot-user"})
	var mu sync.Mutex
	var seen []string
	core.Subscribe(&event.Listener{
		OnMessageSent: func(ctx context.Context, ev *event.V4Event, payload *event.V4MessageSent) error {
			mu.Lock()
			seen = append(seen, ev.ID)
			mu.Unlock()
			return nil
		},
	})

	ok := core.dispatchBatch([]event.V4Event{messageEvent("e1", "alice"), messageEvent("e2", "alice")})
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"e1", "e2"}, seen)
}

func TestDispatchBatchHoldsAckOnRequeue(t *testing.T) {
	core := newTestCore(event.BotInfo{Username: "bot-user"})
	core.Subscribe(&event.Listener{
		OnMessageSent: func(ctx context.Context, ev *event.V4Event, payload *event.V4MessageSent) error {
			if ev.ID == "e2" {
				return event.ErrRequeue
			}
			return nil
		},
	})

	ok := core.dispatchBatch([]event.V4Event{messageEvent("e1", "alice"), messageEvent("e2", "alice")})
	assert.False(t, ok)
}

func TestDispatchBatchAllowsAckDespiteListenerError(t *testing.T) {
	core := newTestCore(event.BotInfo{Username: "bot-user"})
	core.Subscribe(&event.Listener{
		OnMessageSent: func(context.Context, *event.V4Event, *event.V4MessageSent) error {
			return assert.AnError
		},
	})

	// Ordinary listener failures are logged, not redelivered.
	assert.True(t, core.dispatchBatch([]event.V4Event{messageEvent("e1", "alice")}))
}

func TestDispatchBatchRecoversListenerPanic(t *testing.T) {
	core := newTestCore(event.BotInfo{Username: "bot-user"})
	core.Subscribe(&event.Listener{
		OnMessageSent: func(context.Context, *event.V4Event, *event.V4MessageSent) error {
			panic("listener bug")
		},
	})

	assert.True(t, core.dispatchBatch([]event.V4Event{messageEvent("e1", "alice")}))
}

func TestDispatchBatchSkipsSelfEvents(t *testing.T) {
	core := newTestCore(event.BotInfo{Username: "bot-user"})
	var dispatched int
	var mu sync.Mutex
	core.Subscribe(&event.Listener{
		OnMessageSent: func(context.Context, *event.V4Event, *event.V4MessageSent) error {
			mu.Lock()
			dispatched++
			mu.Unlock()
			return nil
		},
	})

	core.dispatchBatch([]event.V4Event{messageEvent("e1", "bot-user"), messageEvent("e2", "alice")})
	assert.Equal(t, 1, dispatched)
}

func TestDispatchBatchSkipsUnsupportedTypes(t *testing.T) {
	core := newTestCore(event.BotInfo{Username: "bot-user"})
	var dispatched int
	var mu sync.Mutex
	core.Subscribe(&event.Listener{
		OnMessageSent: func(context.Context, *event.V4Event, *event.V4MessageSent) error {
			mu.Lock()
			dispatched++
			mu.Unlock()
			return nil
		},
	})

	core.dispatchBatch([]event.V4Event{
		{ID: "e1", Type: "ROOMAVATARUPDATED"},
		messageEvent("e2", "alice"),
	})
	assert.Equal(t, 1, dispatched)
}

func TestDispatchBatchGeneratesMissingEventIDs(t *testing.T) {
	core := newTestCore(event.BotInfo{Username: "bot-user"})
	var gotID string
	var mu sync.Mutex
	core.Subscribe(&event.Listener{
		OnMessageSent: func(ctx context.Context, ev *event.V4Event, payload *event.V4MessageSent) error {
			mu.Lock()
			gotID = ev.ID
			mu.Unlock()
			return nil
		},
	})

	core.dispatchBatch([]event.V4Event{messageEvent("", "alice")})
	assert.NotEmpty(t, gotID)
}

func TestDispatchBatchHoldsAckPastVisibilityTimeout(t *testing.T) {
	core := newTestCore(event.BotInfo{Username: "bot-user"})
	core.visibilityTimeout = 10 * time.Millisecond
	core.Subscribe(&event.Listener{
		OnMessageSent: func(context.Context, *event.V4Event, *event.V4MessageSent) error {
			time.Sleep(30 * time.Millisecond)
			return nil
		},
	})

	// The server will redeliver anyway; advancing the cursor would drop the
	// redelivered copies.
	assert.False(t, core.dispatchBatch([]event.V4Event{messageEvent("e1", "alice")}))
}

func TestUnsubscribeRemovesListener(t *testing.T) {
	core := newTestCore(event.BotInfo{Username: "bot-user"})
	var dispatched int
	var mu sync.Mutex
	subscriptionID := core.Subscribe(&event.Listener{
		OnMessageSent: func(context.Context, *event.V4Event, *event.V4MessageSent) error {
			mu.Lock()
			dispatched++
			mu.Unlock()
			return nil
		},
	})

	core.Unsubscribe(subscriptionID)
	core.dispatchBatch([]event.V4Event{messageEvent("e1", "alice")})
	assert.Equal(t, 0, dispatched)

	// Unknown ids are ignored.
	core.Unsubscribe("missing")
}
