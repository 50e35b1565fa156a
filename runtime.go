// Package bdk is the bot runtime entry point. A Runtime owns the HTTP
// clients, the authenticated session, the datafeed loop, and the activity
// registry, and hands them to the user program as ready-wired handles.
package bdk

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/activity"
	"github.com/finos/symphony-bdk-go/auth"
	"github.com/finos/symphony-bdk-go/config"
	"github.com/finos/symphony-bdk-go/datafeed"
	"github.com/finos/symphony-bdk-go/network"
	"github.com/finos/symphony-bdk-go/retry"
)

// Agent reads long-poll; the agent client timeout must comfortably exceed
// the server's poll window.
const agentReadTimeout = 2 * time.Minute

// ErrAppNotConfigured is returned by OBO and extension-app entry points when
// the config carries no app credential.
var ErrAppNotConfigured = errors.New("extension app is not configured")

// Runtime is the composition root. Construct one per bot process, register
// activities, then run Datafeed().Start.
type Runtime struct {
	cfg    *config.BdkConfig
	logger *zap.Logger

	podClient   *network.Client
	agentClient *network.Client
	loginClient *network.Client
	relayClient *network.Client

	botKey   *rsa.PrivateKey
	appKey   *rsa.PrivateKey
	session  auth.Session
	sessions *SessionService

	datafeedLoop datafeed.Loop
	activities   *activity.Registry

	closeOnce sync.Once
}

// Option tunes the runtime at construction time.
type Option func(*Runtime)

// WithLogger installs the zap logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// New validates the configuration and wires every component. Configuration
// and credential problems surface here, never from the event loop.
func New(cfg *config.BdkConfig, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	r := &Runtime{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	var err error
	if r.botKey, err = auth.LoadPrivateKey(cfg.Bot.PrivateKey); err != nil {
		return nil, fmt.Errorf("bot credential: %w", err)
	}
	if cfg.App.IsConfigured() {
		if r.appKey, err = auth.LoadPrivateKey(cfg.App.PrivateKey); err != nil {
			return nil, fmt.Errorf("app credential: %w", err)
		}
	}

	if err := r.buildClients(); err != nil {
		return nil, err
	}

	retryPolicy := retry.PolicyFrom(cfg.Retry)
	authenticator := auth.NewBotAuthenticator(
		r.loginClient, r.relayClient, r.botKey, cfg.Bot.Username, retryPolicy, r.logger)
	r.session = auth.NewBotSession(authenticator)
	r.sessions = NewSessionService(r.podClient, r.session, retryPolicy, r.logger)

	datafeedAPI := datafeed.NewAPI(r.agentClient, r.logger)
	datafeedPolicy := retry.PolicyFrom(cfg.Datafeed.Retry)
	switch cfg.Datafeed.Version {
	case config.DatafeedVersionV1:
		idRepo := datafeed.NewFileIDRepository(cfg.Datafeed.IDFilePath)
		r.datafeedLoop = datafeed.NewV1Loop(
			datafeedAPI, r.session, r.sessions, idRepo, datafeedPolicy, r.logger)
	default:
		r.datafeedLoop = datafeed.NewV2Loop(
			datafeedAPI, r.session, r.sessions, cfg.Bot.Username, datafeedPolicy, r.logger)
	}

	r.activities = activity.NewRegistry(r.sessions, r.logger)
	r.datafeedLoop.Subscribe(r.activities.Listener())

	return r, nil
}

func (r *Runtime) buildClients() error {
	build := func(server config.ServerConfig, timeout time.Duration) (*network.Client, error) {
		return network.NewClient(server, network.Options{
			TrustStorePath: r.cfg.TrustStorePath,
			Timeout:        timeout,
			Logger:         r.logger,
		})
	}

	var err error
	if r.podClient, err = build(r.cfg.ResolvedPod(), 0); err != nil {
		return fmt.Errorf("pod client: %w", err)
	}
	if r.agentClient, err = build(r.cfg.ResolvedAgent(), agentReadTimeout); err != nil {
		return fmt.Errorf("agent client: %w", err)
	}
	if r.loginClient, err = build(r.cfg.ResolvedSessionAuth(), 0); err != nil {
		return fmt.Errorf("session-auth client: %w", err)
	}
	if r.relayClient, err = build(r.cfg.ResolvedKeyManager(), 0); err != nil {
		return fmt.Errorf("key-manager client: %w", err)
	}
	return nil
}

// Authenticate fetches the initial token pair. Datafeed().Start calls the
// platform anyway, so this is optional; it exists to fail fast.
func (r *Runtime) Authenticate(ctx context.Context) error {
	return r.session.Refresh(ctx)
}

// Session exposes the bot's auth session.
func (r *Runtime) Session() auth.Session {
	return r.session
}

// Sessions exposes the session service.
func (r *Runtime) Sessions() *SessionService {
	return r.sessions
}

// Datafeed exposes the configured event loop.
func (r *Runtime) Datafeed() datafeed.Loop {
	return r.datafeedLoop
}

// Activities exposes the activity registry.
func (r *Runtime) Activities() *activity.Registry {
	return r.activities
}

// Datahose builds a datahose loop for the given event-type filters. The
// activity registry is not auto-subscribed; datahose streams are usually
// consumed by dedicated listeners.
func (r *Runtime) Datahose(filters ...string) datafeed.Loop {
	return datafeed.NewDatahoseLoop(
		datafeed.NewAPI(r.agentClient, r.logger),
		r.session,
		r.sessions,
		r.cfg.Bot.Username,
		r.cfg.Datahose.Tag,
		append(append([]string{}, r.cfg.Datahose.EventTypes...), filters...),
		retry.PolicyFrom(r.cfg.Datahose.Retry),
		r.logger,
	)
}

// OboSessionForUsername mints a user-scoped OBO session.
func (r *Runtime) OboSessionForUsername(ctx context.Context, username string) (auth.Session, error) {
	authenticator, err := r.oboAuthenticator()
	if err != nil {
		return nil, err
	}
	return authenticator.AuthenticateByUsername(ctx, username)
}

// OboSessionForUserID mints a user-scoped OBO session.
func (r *Runtime) OboSessionForUserID(ctx context.Context, userID int64) (auth.Session, error) {
	authenticator, err := r.oboAuthenticator()
	if err != nil {
		return nil, err
	}
	return authenticator.AuthenticateByUserID(ctx, userID)
}

func (r *Runtime) oboAuthenticator() (*auth.OboAuthenticator, error) {
	if r.appKey == nil {
		return nil, ErrAppNotConfigured
	}
	return auth.NewOboAuthenticator(
		r.loginClient, r.appKey, r.cfg.App.AppID, retry.PolicyFrom(r.cfg.Retry), r.logger), nil
}

// ExtensionApp returns the extension-app authenticator backed by an
// in-memory tokens repository.
func (r *Runtime) ExtensionApp() (*auth.ExtensionAppAuthenticator, error) {
	if r.appKey == nil {
		return nil, ErrAppNotConfigured
	}
	return auth.NewExtensionAppAuthenticator(
		r.loginClient, r.podClient, r.appKey, r.cfg.App.AppID,
		nil, retry.PolicyFrom(r.cfg.Retry), r.logger), nil
}

// Close stops the datafeed loop gracefully and releases pooled connections.
// Safe to call more than once, concurrently.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.datafeedLoop.Stop(false, datafeed.DefaultStopTimeout)
		for _, client := range []*network.Client{r.podClient, r.agentClient, r.loginClient, r.relayClient} {
			client.CloseIdleConnections()
		}
	})
	return nil
}
