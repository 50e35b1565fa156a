// Package config defines the immutable configuration tree for the bot
// runtime: server endpoints with fall-through to global values, credentials,
// datafeed and retry settings.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DatafeedVersionV1 = "v1"
	DatafeedVersionV2 = "v2"

	DefaultScheme = "https"
	DefaultPort   = 443

	DefaultRetryMaxAttempts     = 10
	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryMultiplier      = 2.0
	DefaultRetryMaxInterval     = 5 * time.Minute
)

// ProxyConfig describes an optional forward proxy with optional credentials.
type ProxyConfig struct {
	Scheme   string `mapstructure:"scheme"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// URL renders the proxy address, embedding credentials when present.
func (p *ProxyConfig) URL() (*url.URL, error) {
	if p == nil || p.Host == "" {
		return nil, nil
	}
	scheme := p.Scheme
	if scheme == "" {
		scheme = "http"
	}
	proxyURL := &url.URL{Scheme: scheme, Host: p.Host}
	if p.Port > 0 {
		proxyURL.Host = fmt.Sprintf("%s:%d", p.Host, p.Port)
	}
	if p.Username != "" {
		proxyURL.User = url.UserPassword(p.Username, p.Password)
	}
	return proxyURL, nil
}

// ServerConfig describes one platform endpoint. Zero-valued fields fall
// through to the parent (global) server config when resolved.
type ServerConfig struct {
	Scheme         string            `mapstructure:"scheme"`
	Host           string            `mapstructure:"host"`
	Port           int               `mapstructure:"port"`
	Context        string            `mapstructure:"context"`
	Proxy          *ProxyConfig      `mapstructure:"proxy"`
	DefaultHeaders map[string]string `mapstructure:"defaultHeaders"`
}

// ResolveAgainst fills zero-valued fields from the parent config and applies
// the scheme/port defaults. The receiver is not modified.
func (s ServerConfig) ResolveAgainst(parent ServerConfig) ServerConfig {
	resolved := s
	if resolved.Scheme == "" {
		resolved.Scheme = parent.Scheme
	}
	if resolved.Host == "" {
		resolved.Host = parent.Host
	}
	if resolved.Port == 0 {
		resolved.Port = parent.Port
	}
	if resolved.Context == "" {
		resolved.Context = parent.Context
	}
	if resolved.Proxy == nil {
		resolved.Proxy = parent.Proxy
	}
	if resolved.DefaultHeaders == nil {
		resolved.DefaultHeaders = parent.DefaultHeaders
	}
	if resolved.Scheme == "" {
		resolved.Scheme = DefaultScheme
	}
	if resolved.Port == 0 {
		resolved.Port = DefaultPort
	}
	return resolved
}

// BaseURL renders "scheme://host:port/context" with the context path
// normalized to a single leading slash and no trailing slash.
func (s ServerConfig) BaseURL() string {
	base := fmt.Sprintf("%s://%s:%d", s.Scheme, s.Host, s.Port)
	contextPath := strings.Trim(s.Context, "/")
	if contextPath != "" {
		base += "/" + contextPath
	}
	return base
}

// PrivateKeyConfig holds RSA key material as either a filesystem path or the
// PEM content itself. The two are mutually exclusive.
type PrivateKeyConfig struct {
	Path    string `mapstructure:"path"`
	Content string `mapstructure:"content"`
}

func (k PrivateKeyConfig) validate(owner string) error {
	if k.Path == "" && k.Content == "" {
		return fmt.Errorf("%s private key requires either path or content", owner)
	}
	if k.Path != "" && k.Content != "" {
		return fmt.Errorf("%s private key path and content are mutually exclusive", owner)
	}
	return nil
}

// IsConfigured reports whether any key material is set.
func (k PrivateKeyConfig) IsConfigured() bool {
	return k.Path != "" || k.Content != ""
}

// BotConfig is the service-account credential.
type BotConfig struct {
	Username   string           `mapstructure:"username"`
	PrivateKey PrivateKeyConfig `mapstructure:"privateKey"`
}

// AppConfig is the optional extension-app credential.
type AppConfig struct {
	AppID      string           `mapstructure:"appId"`
	PrivateKey PrivateKeyConfig `mapstructure:"privateKey"`
}

// IsConfigured reports whether an extension app credential is present.
func (a AppConfig) IsConfigured() bool {
	return a.AppID != "" && a.PrivateKey.IsConfigured()
}

// RetryConfig parameterizes the exponential-backoff retry engine.
// MaxAttempts < 0 means effectively unbounded.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	InitialInterval time.Duration `mapstructure:"initialInterval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxInterval     time.Duration `mapstructure:"maxInterval"`
}

// DefaultRetryConfig returns the platform retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     DefaultRetryMaxAttempts,
		InitialInterval: DefaultRetryInitialInterval,
		Multiplier:      DefaultRetryMultiplier,
		MaxInterval:     DefaultRetryMaxInterval,
	}
}

// DatafeedConfig selects the datafeed loop version and its retry policy.
type DatafeedConfig struct {
	Version    string      `mapstructure:"version"`
	IDFilePath string      `mapstructure:"idFilePath"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// DatahoseConfig configures the tag-filtered shared event stream.
type DatahoseConfig struct {
	Tag        string      `mapstructure:"tag"`
	EventTypes []string    `mapstructure:"eventTypes"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// BdkConfig is the root of the configuration tree. The embedded ServerConfig
// holds the global endpoint values the per-component configs fall through to.
type BdkConfig struct {
	ServerConfig `mapstructure:",squash"`

	Pod         ServerConfig `mapstructure:"pod"`
	Agent       ServerConfig `mapstructure:"agent"`
	KeyManager  ServerConfig `mapstructure:"keyManager"`
	SessionAuth ServerConfig `mapstructure:"sessionAuth"`

	Bot      BotConfig      `mapstructure:"bot"`
	App      AppConfig      `mapstructure:"app"`
	Datafeed DatafeedConfig `mapstructure:"datafeed"`
	Datahose DatahoseConfig `mapstructure:"datahose"`
	Retry    RetryConfig    `mapstructure:"retry"`

	TrustStorePath string `mapstructure:"trustStorePath"`
}

// New returns a config with the platform defaults applied.
func New() *BdkConfig {
	return &BdkConfig{
		Datafeed: DatafeedConfig{Version: DatafeedVersionV2, Retry: DefaultRetryConfig()},
		Datahose: DatahoseConfig{Retry: RetryConfig{
			MaxAttempts:     -1,
			InitialInterval: DefaultRetryInitialInterval,
			Multiplier:      DefaultRetryMultiplier,
			MaxInterval:     DefaultRetryMaxInterval,
		}},
		Retry: DefaultRetryConfig(),
	}
}

// ResolvedPod returns the pod endpoint with global fall-through applied.
func (c *BdkConfig) ResolvedPod() ServerConfig { return c.Pod.ResolveAgainst(c.ServerConfig) }

// ResolvedAgent returns the agent endpoint with global fall-through applied.
func (c *BdkConfig) ResolvedAgent() ServerConfig { return c.Agent.ResolveAgainst(c.ServerConfig) }

// ResolvedKeyManager returns the key-manager endpoint with global
// fall-through applied.
func (c *BdkConfig) ResolvedKeyManager() ServerConfig {
	return c.KeyManager.ResolveAgainst(c.ServerConfig)
}

// ResolvedSessionAuth returns the session-auth endpoint with global
// fall-through applied.
func (c *BdkConfig) ResolvedSessionAuth() ServerConfig {
	return c.SessionAuth.ResolveAgainst(c.ServerConfig)
}

// Validate checks that the configuration is complete enough to construct the
// runtime. It is called from the runtime constructor so credential problems
// surface synchronously, never from the event loop.
func (c *BdkConfig) Validate() error {
	if c.ResolvedPod().Host == "" {
		return fmt.Errorf("pod host is required")
	}
	if c.ResolvedAgent().Host == "" {
		return fmt.Errorf("agent host is required")
	}
	if c.Bot.Username == "" {
		return fmt.Errorf("bot username is required")
	}
	if err := c.Bot.PrivateKey.validate("bot"); err != nil {
		return err
	}
	if c.App.AppID != "" {
		if err := c.App.PrivateKey.validate("app"); err != nil {
			return err
		}
	}
	switch c.Datafeed.Version {
	case "", DatafeedVersionV1, DatafeedVersionV2:
	default:
		return fmt.Errorf("unsupported datafeed version %q", c.Datafeed.Version)
	}
	for _, endpoint := range []ServerConfig{
		c.ResolvedPod(), c.ResolvedAgent(), c.ResolvedKeyManager(), c.ResolvedSessionAuth(),
	} {
		switch endpoint.Scheme {
		case "http", "https":
		default:
			return fmt.Errorf("unsupported scheme %q", endpoint.Scheme)
		}
	}
	return nil
}
