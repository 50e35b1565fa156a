package datafeed

import (
	"context"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/auth"
	"github.com/finos/symphony-bdk-go/retry"
)

const maxDatahoseTagLength = 80

// DatahoseLoop reads the shared tag-filtered event stream. There is no
// server-side queue to create or delete; only the ack cursor is per-reader.
type DatahoseLoop struct {
	loopCore
	api         *API
	session     auth.Session
	retryPolicy retry.Policy
	tag         string
	filters     []string

	ackID string
}

// NewDatahoseLoop builds a datahose loop for the given event-type filters.
// An empty tag defaults to "datahose-<botUsername>" truncated to the
// platform limit. The retry policy defaults to unbounded attempts.
func NewDatahoseLoop(api *API, session auth.Session, sessions BotInfoSource, botUsername string, tag string, filters []string, retryPolicy retry.Policy, logger *zap.Logger) *DatahoseLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("datahose")
	if tag == "" {
		tag = "datahose-" + botUsername
	}
	if len(tag) > maxDatahoseTagLength {
		tag = tag[:maxDatahoseTagLength]
	}
	return &DatahoseLoop{
		loopCore:    newLoopCore(sessions, logger),
		api:         api,
		session:     session,
		retryPolicy: retryPolicy,
		tag:         tag,
		filters:     filters,
	}
}

// Start runs the loop until Stop is called or an unrecoverable error occurs.
func (l *DatahoseLoop) Start(ctx context.Context) error {
	return l.run(ctx, nil, func(ctx context.Context) error {
		return retry.Do(ctx, l.logger, "read datahose", l.retrySpec(), l.iterate)
	})
}

func (l *DatahoseLoop) retrySpec() retry.Spec {
	return retry.Spec{
		Policy:    l.retryPolicy,
		Retryable: retry.ReadDatafeedPredicate(),
		OnRetry:   retry.DatafeedRecovery(l.session, l.recreate),
	}
}

// recreate resets the ack cursor; the datahose stream itself is shared and
// cannot be recreated by a reader.
func (l *DatahoseLoop) recreate(context.Context) error {
	l.ackID = ""
	l.logger.Info("reset datahose ack cursor", zap.String("tag", l.tag))
	return nil
}

func (l *DatahoseLoop) iterate(ctx context.Context) error {
	batch, err := l.api.ReadEvents(ctx, l.session, l.tag, l.filters, l.ackID)
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
