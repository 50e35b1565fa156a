package datafeed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/auth"
	"github.com/finos/symphony-bdk-go/retry"
)

// V1Loop polls a per-bot v4 datafeed queue. The queue id is remembered
// across restarts through the IDRepository; v1 has no ack cursor.
type V1Loop struct {
	loopCore
	api         *API
	session     auth.Session
	idRepo      IDRepository
	retryPolicy retry.Policy

	datafeedID string
}

// NewV1Loop builds a v1 loop persisting its queue id in idRepo.
func NewV1Loop(api *API, session auth.Session, sessions BotInfoSource, idRepo IDRepository, retryPolicy retry.Policy, logger *zap.Logger) *V1Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("datafeed-v1")
	return &V1Loop{
		loopCore:    newLoopCore(sessions, logger),
		api:         api,
		session:     session,
		idRepo:      idRepo,
		retryPolicy: retryPolicy,
	}
}

// Start runs the loop until Stop is called or an unrecoverable error occurs.
func (l *V1Loop) Start(ctx context.Context) error {
	return l.run(ctx,
		func(ctx context.Context) error {
			return retry.Do(ctx, l.logger, "prepare datafeed v1", l.retrySpec(), l.prepare)
		},
		func(ctx context.Context) error {
			return retry.Do(ctx, l.logger, "read datafeed v1", l.retrySpec(), l.iterate)
		},
	)
}

func (l *V1Loop) retrySpec() retry.Spec {
	return retry.Spec{
		Policy:    l.retryPolicy,
		Retryable: retry.ReadDatafeedPredicate(),
		OnRetry:   retry.DatafeedRecovery(l.session, l.recreate),
	}
}

// prepare reuses the persisted id when it was created against the same
// agent, otherwise creates a fresh queue. A persisted id whose base URL no
// longer matches is replaced; the file is never rewritten on reuse.
func (l *V1Loop) prepare(ctx context.Context) error {
	persistedID, agentBaseURL, err := l.idRepo.Read()
	if err != nil {
		return err
	}
	if persistedID != "" && agentBaseURL == l.api.AgentBaseURL() {
		l.datafeedID = persistedID
		l.logger.Info("reusing persisted datafeed id", zap.String("datafeed_id", persistedID))
		return nil
	}
	return l.recreate(ctx)
}

// recreate creates a new server-side queue and persists its id. The v1 API
// has no delete operation; a stale queue is simply abandoned.
func (l *V1Loop) recreate(ctx context.Context) error {
	datafeedID, err := l.api.CreateV1(ctx, l.session)
	if err != nil {
		return err
	}
	l.datafeedID = datafeedID
	if err := l.idRepo.Write(datafeedID, l.api.AgentBaseURL()); err != nil {
		return fmt.Errorf("persist datafeed id: %w", err)
	}
	l.logger.Info("created datafeed", zap.String("datafeed_id", datafeedID))
	return nil
}

func (l *V1Loop) iterate(ctx context.Context) error {
	events, err := l.api.ReadV1(ctx, l.session, l.datafeedID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	l.dispatchBatch(events)
	return nil
}
