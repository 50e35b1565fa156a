package bdk

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/auth"
	"github.com/finos/symphony-bdk-go/event"
	"github.com/finos/symphony-bdk-go/network"
	"github.com/finos/symphony-bdk-go/retry"
)

const sessionInfoPath = "/pod/v2/sessioninfo"

// SessionService resolves the bot's own identity from the pod and caches it
// for the process lifetime. It is the BotInfoSource the datafeed loop and
// activity registry share.
type SessionService struct {
	pod         *network.Client
	session     auth.Session
	retryPolicy retry.Policy
	logger      *zap.Logger

	mu     sync.Mutex
	cached event.BotInfo
	init   bool
}

// NewSessionService builds a service over the pod client.
func NewSessionService(pod *network.Client, session auth.Session, retryPolicy retry.Policy, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		pod:         pod,
		session:     session,
		retryPolicy: retryPolicy,
		logger:      logger.Named("sessions"),
	}
}

// BotInfo returns the bot's user id, username, and display name.
func (s *SessionService) BotInfo(ctx context.Context) (event.BotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.init {
		return s.cached, nil
	}

	var info struct {
		ID          int64  `json:"id"`
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
	}
	spec := retry.Spec{
		Policy:    s.retryPolicy,
		Retryable: retry.RefreshSessionPredicate(),
		OnRetry:   retry.SessionRecovery(s.session),
	}
	err := retry.Do(ctx, s.logger, "fetch session info", spec, func(ctx context.Context) error {
		return s.pod.Call(ctx, network.Request{
			Method:  http.MethodGet,
			Path:    sessionInfoPath,
			Headers: map[string]string{auth.SessionTokenHeader: s.session.SessionToken()},
			Out:     &info,
		})
	})
	if err != nil {
		return event.BotInfo{}, err
	}

	s.cached = event.BotInfo{UserID: info.ID, Username: info.Username, DisplayName: info.DisplayName}
	s.init = true
	s.logger.Debug("resolved bot session info", zap.Int64("user_id", info.ID), zap.String("username", info.Username))
	return s.cached, nil
}
