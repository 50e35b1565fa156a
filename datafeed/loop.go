package datafeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/event"
	"github.com/finos/symphony-bdk-go/tracing"
)

// DefaultVisibilityTimeout is the server-side redelivery window. When a
// batch's listener tasks run longer than this, the ack cursor is held back
// because the server will resend anyway.
const DefaultVisibilityTimeout = 30 * time.Second

// DefaultStopTimeout bounds the wait for in-flight listener tasks on Close.
const DefaultStopTimeout = 10 * time.Second

var (
	// ErrAlreadyStarted is returned by Start on a running loop.
	ErrAlreadyStarted = errors.New("datafeed loop already started")

	// ErrStopped is returned by Start on a stopped loop; construct a new
	// loop to restart.
	ErrStopped = errors.New("datafeed loop stopped")
)

// BotInfoSource supplies the bot identity events are matched against. The
// loop fetches it once on start.
type BotInfoSource interface {
	BotInfo(ctx context.Context) (event.BotInfo, error)
}

// Loop is a datafeed event loop. Subscribe is safe before Start; changes
// take effect from the next batch onward.
type Loop interface {
	Start(ctx context.Context) error
	Stop(hardKill bool, timeout time.Duration)
	Subscribe(listener *event.Listener) string
	Unsubscribe(subscriptionID string)
}

const (
	loopIdle = iota
	loopRunning
	loopStopping
	loopStopped
)

type listenerEntry struct {
	id       string
	listener *event.Listener
}

// loopCore carries everything the loop variants share: the listener set, the
// bot identity, stop handling, and batch dispatch with ack gating.
type loopCore struct {
	sessions          BotInfoSource
	logger            *zap.Logger
	visibilityTimeout time.Duration

	mu          sync.Mutex
	listeners   []listenerEntry
	botInfo     event.BotInfo
	state       int
	hardKill    bool
	stopTimeout time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	runCtx      context.Context
	runCancel   context.CancelFunc
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	tasks       sync.WaitGroup
}

func newLoopCore(sessions BotInfoSource, logger *zap.Logger) loopCore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return loopCore{
		sessions:          sessions,
		logger:            logger,
		visibilityTimeout: DefaultVisibilityTimeout,
		stopTimeout:       DefaultStopTimeout,
	}
}

func (c *loopCore) Subscribe(listener *event.Listener) string {
	subscriptionID := uuid.NewString()
	c.mu.Lock()
	c.listeners = append(c.listeners, listenerEntry{id: subscriptionID, listener: listener})
	c.mu.Unlock()
	return subscriptionID
}

func (c *loopCore) Unsubscribe(subscriptionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.listeners {
		if entry.id == subscriptionID {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Stop requests shutdown and blocks until the loop has drained. With
// hardKill the in-flight poll and all listener tasks are cancelled
// immediately; otherwise the current iteration finishes and outstanding
// tasks get up to timeout before cancellation. Stop may be called more than
// once, concurrently; a later call can only escalate a draining soft stop to
// a hard kill.
func (c *loopCore) Stop(hardKill bool, timeout time.Duration) {
	runCancel, done := c.requestStop(hardKill, timeout)
	if done == nil {
		return
	}
	if hardKill {
		runCancel()
	}
	<-done
}

func (c *loopCore) requestStop(hardKill bool, timeout time.Duration) (context.CancelFunc, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case loopRunning:
		c.state = loopStopping
		c.hardKill = hardKill
		if timeout > 0 {
			c.stopTimeout = timeout
		}
		close(c.stopCh)
		c.stopCh = nil
	case loopStopping:
		if hardKill {
			c.hardKill = true
		}
	default:
		return nil, nil
	}
	return c.runCancel, c.doneCh
}

func (c *loopCore) begin(ctx context.Context) (context.Context, <-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case loopRunning, loopStopping:
		return nil, nil, ErrAlreadyStarted
	case loopStopped:
		return nil, nil, ErrStopped
	}
	c.state = loopRunning
	c.hardKill = false
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.runCtx, c.runCancel = context.WithCancel(ctx)
	c.taskCtx, c.taskCancel = context.WithCancel(c.runCtx)
	return c.runCtx, c.stopCh, nil
}

// run is the shared outer loop: fetch the bot identity once, prepare the
// queue, then poll until stopped. prepare and iterate come retry-wrapped
// from the variant.
func (c *loopCore) run(ctx context.Context, prepare func(context.Context) error, iterate func(context.Context) error) error {
	runCtx, stopCh, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer c.finish()

	botInfo, err := c.sessions.BotInfo(runCtx)
	if err != nil {
		if c.stopRequested(runCtx, err) {
			return nil
		}
		return fmt.Errorf("fetch bot session info: %w", err)
	}
	c.mu.Lock()
	c.botInfo = botInfo
	c.mu.Unlock()

	select {
	case <-runCtx.Done():
		return nil
	case <-stopCh:
		return nil
	default:
	}

	if prepare != nil {
		if err := prepare(runCtx); err != nil {
			if c.stopRequested(runCtx, err) {
				return nil
			}
			return err
		}
	}

	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-stopCh:
			return nil
		default:
		}
		if err := iterate(runCtx); err != nil {
			if c.stopRequested(runCtx, err) {
				return nil
			}
			return err
		}
	}
}

// stopRequested distinguishes a cancellation caused by Stop from a real
// failure, so a stopped loop returns nil.
func (c *loopCore) stopRequested(runCtx context.Context, err error) bool {
	return runCtx.Err() != nil && errors.Is(err, context.Canceled)
}

func (c *loopCore) finish() {
	c.mu.Lock()
	c.state = loopStopped
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	hardKill := c.hardKill
	timeout := c.stopTimeout
	taskCancel := c.taskCancel
	runCancel := c.runCancel
	done := c.doneCh
	c.mu.Unlock()
	defer close(done)

	if !hardKill {
		done := make(chan struct{})
		go func() {
			c.tasks.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			c.logger.Warn("listener tasks still running after stop timeout; cancelling")
			taskCancel()
			<-done
		}
	}
	runCancel()
}

// dispatchBatch fans each event out to every accepting listener as an
// independent task and waits for the batch to drain. It reports whether the
// ack cursor may advance: a requeue sentinel, a cancelled task, or blowing
// the visibility timeout all hold it back.
func (c *loopCore) dispatchBatch(events []event.V4Event) bool {
	c.mu.Lock()
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	botInfo := c.botInfo
	taskCtx := c.taskCtx
	c.mu.Unlock()

	started := time.Now()
	var requeue atomic.Bool
	var batch sync.WaitGroup

	for i := range events {
		ev := &events[i]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if !event.Supported(ev.Type) {
			c.logger.Debug("skipping unsupported event type", zap.String("type", ev.Type), zap.String("event_id", ev.ID))
			continue
		}
		for _, entry := range listeners {
			if !entry.listener.Accepts(ev, botInfo) {
				continue
			}
			batch.Add(1)
			c.tasks.Add(1)
			go c.runListenerTask(taskCtx, &batch, entry.listener, ev, &requeue)
		}
	}

	batch.Wait()

	if elapsed := time.Since(started); elapsed > c.visibilityTimeout {
		c.logger.Warn(
			"batch processing exceeded the visibility timeout, events will be redelivered",
			zap.Duration("elapsed", elapsed),
			zap.Duration("visibility_timeout", c.visibilityTimeout),
		)
		return false
	}
	return !requeue.Load()
}

func (c *loopCore) runListenerTask(taskCtx context.Context, batch *sync.WaitGroup, listener *event.Listener, ev *event.V4Event, requeue *atomic.Bool) {
	defer batch.Done()
	defer c.tasks.Done()

	ctx, traceID := tracing.Ensure(taskCtx)
	logger := c.logger.With(zap.String("trace_id", traceID), zap.String("event_id", ev.ID))

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("listener panicked", zap.Any("panic", recovered))
		}
	}()

	err := event.Dispatch(ctx, listener, ev)
	switch {
	case err == nil:
	case errors.Is(err, event.ErrRequeue):
		requeue.Store(true)
		logger.Info("listener requested event redelivery", zap.String("event_type", ev.Type))
	case errors.Is(err, context.Canceled):
		requeue.Store(true)
		logger.Debug("listener task cancelled", zap.String("event_type", ev.Type))
	default:
		logger.Warn("listener failed", zap.String("event_type", ev.Type), zap.Error(err))
	}
}
