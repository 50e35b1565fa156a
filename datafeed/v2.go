package datafeed

import (
	"context"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/auth"
	"github.com/finos/symphony-bdk-go/retry"
)

const maxTagLength = 100

// V2Loop polls a tagged v5 datafeed. The server tracks delivery through the
// ack cursor: events read but not acked are redelivered.
type V2Loop struct {
	loopCore
	api         *API
	session     auth.Session
	retryPolicy retry.Policy
	tag         string

	datafeedID string
	ackID      string
}

// NewV2Loop builds a v2 loop tagged with the bot username (truncated to the
// platform limit).
func NewV2Loop(api *API, session auth.Session, sessions BotInfoSource, botUsername string, retryPolicy retry.Policy, logger *zap.Logger) *V2Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("datafeed-v2")
	tag := botUsername
	if len(tag) > maxTagLength {
		tag = tag[:maxTagLength]
	}
	return &V2Loop{
		loopCore:    newLoopCore(sessions, logger),
		api:         api,
		session:     session,
		retryPolicy: retryPolicy,
		tag:         tag,
	}
}

// Start runs the loop until Stop is called or an unrecoverable error occurs.
func (l *V2Loop) Start(ctx context.Context) error {
	return l.run(ctx,
		func(ctx context.Context) error {
			return retry.Do(ctx, l.logger, "prepare datafeed v2", l.retrySpec(), l.prepare)
		},
		func(ctx context.Context) error {
			return retry.Do(ctx, l.logger, "read datafeed v2", l.retrySpec(), l.iterate)
		},
	)
}

func (l *V2Loop) retrySpec() retry.Spec {
	return retry.Spec{
		Policy:    l.retryPolicy,
		Retryable: retry.ReadDatafeedPredicate(),
		OnRetry:   retry.DatafeedRecovery(l.session, l.recreate),
	}
}

// prepare reuses the first feed carrying the bot's tag, creating one when
// none exists.
func (l *V2Loop) prepare(ctx context.Context) error {
	feedIDs, err := l.api.ListV2(ctx, l.session, l.tag)
	if err != nil {
		return err
	}
	if len(feedIDs) > 0 {
		l.datafeedID = feedIDs[0]
		l.logger.Info("reusing datafeed", zap.String("datafeed_id", l.datafeedID), zap.String("tag", l.tag))
		return nil
	}
	datafeedID, err := l.api.CreateV2(ctx, l.session, l.tag)
	if err != nil {
		return err
	}
	l.datafeedID = datafeedID
	l.logger.Info("created datafeed", zap.String("datafeed_id", datafeedID), zap.String("tag", l.tag))
	return nil
}

// recreate deletes the stale queue, creates a fresh one, and resets the ack
// cursor so the server restarts delivery.
func (l *V2Loop) recreate(ctx context.Context) error {
	if l.datafeedID != "" {
		if err := l.api.DeleteV2(ctx, l.session, l.datafeedID); err != nil {
			l.logger.Warn("failed deleting stale datafeed", zap.String("datafeed_id", l.datafeedID), zap.Error(err))
		}
	}
	datafeedID, err := l.api.CreateV2(ctx, l.session, l.tag)
	if err != nil {
		return err
	}
	l.datafeedID = datafeedID
	l.ackID = ""
	l.logger.Info("recreated datafeed", zap.String("datafeed_id", datafeedID))
	return nil
}

func (l *V2Loop) iterate(ctx context.Context) error {
	batch, err := l.api.ReadV2(ctx, l.session, l.datafeedID, l.ackID)
	if err != nil {
		return err
	}
	if len(batch.Events) == 0 {
		return nil
	}
	if l.dispatchBatch(batch.Events) {
		l.ackID = batch.AckID
	}
	return nil
}
