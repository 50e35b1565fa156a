package retry

import (
	"context"
	"fmt"

	"github.com/finos/symphony-bdk-go/network"
)

// Refresher is the slice of an auth session the recovery hooks need.
type Refresher interface {
	Refresh(context.Context) error
}

// AuthenticationPredicate retries transient network and server errors but
// never 401 or 403; failing credentials are not going to start working.
func AuthenticationPredicate() func(error) bool {
	return func(err error) bool {
		if network.IsUnauthorized(err) || network.IsForbidden(err) {
			return false
		}
		return network.IsMinorError(err)
	}
}

// RefreshSessionPredicate retries the transient set and additionally 401,
// which is recovered by refreshing the session before the next attempt.
func RefreshSessionPredicate() func(error) bool {
	return func(err error) bool {
		return network.IsUnauthorized(err) || network.IsMinorError(err)
	}
}

// ReadDatafeedPredicate extends the refresh-session set with 400, which on a
// datafeed read means the server-side queue is stale and must be recreated.
func ReadDatafeedPredicate() func(error) bool {
	return func(err error) bool {
		return network.IsClientError(err) || network.IsUnauthorized(err) || network.IsMinorError(err)
	}
}

// SessionRecovery refreshes the session when an attempt failed with 401. A
// 401 that persists after one refresh is fatal.
func SessionRecovery(session Refresher) func(context.Context, error) error {
	refreshed := false
	return func(ctx context.Context, err error) error {
		if !network.IsUnauthorized(err) {
			return nil
		}
		if refreshed {
			return fmt.Errorf("still unauthorized after session refresh: %w", err)
		}
		refreshed = true
		if refreshErr := session.Refresh(ctx); refreshErr != nil {
			return refreshErr
		}
		return nil
	}
}

// DatafeedRecovery combines session refresh on 401 with queue recreation on
// 400. The recreate hook deletes the server-side queue, creates a fresh one,
// and resets the ack cursor.
func DatafeedRecovery(session Refresher, recreate func(context.Context) error) func(context.Context, error) error {
	refreshSession := SessionRecovery(session)
	return func(ctx context.Context, err error) error {
		if network.IsClientError(err) {
			return recreate(ctx)
		}
		return refreshSession(ctx, err)
	}
}
