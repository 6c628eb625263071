// Package api talks to the FSI server: session handling, directory listings,
// file operations, metadata and transfers.
package api

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/neptunelabs/fsi-client/internal/config"
	fsihttp "github.com/neptunelabs/fsi-client/internal/http"
	"github.com/neptunelabs/fsi-client/internal/ratelimit"
	"github.com/neptunelabs/fsi-client/internal/version"
)

// Client is an FSI server session.
type Client struct {
	cfg       *config.Config
	transport *HTTPTransport
	retry     fsihttp.Config

	mu       sync.Mutex
	user     string
	password string
	loggedIn bool
	access   string

	relogin singleflight.Group
}

// NewClient creates a client for cfg.ServerURL. No request is sent until
// Login or the first call.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, config.ErrMissingServerURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL()); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidServerURL, err)
	}

	apiClient, err := fsihttp.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	streamClient, err := fsihttp.CreateTransferClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure transfer client: %w", err)
	}
	return newClient(cfg, apiClient, streamClient)
}

// NewClientWithHTTP builds a client on caller supplied HTTP clients, e.g.
// the ones of an httptest.Server.
func NewClientWithHTTP(cfg *config.Config, hc *nethttp.Client) (*Client, error) {
	apiHC, streamHC := *hc, *hc
	return newClient(cfg, &apiHC, &streamHC)
}

func newClient(cfg *config.Config, apiClient, streamClient *nethttp.Client) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	apiClient.Jar = jar
	streamClient.Jar = jar

	rc := retryablehttp.NewClient()
	rc.HTTPClient = apiClient
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = zerologRetryLogger{}

	c := &Client{
		cfg: cfg,
		retry: fsihttp.Config{
			MaxRetries:   cfg.MaxRetries + 1,
			InitialDelay: cfg.RetryWaitMin,
			MaxDelay:     cfg.RetryWaitMax,
			OnRetry: func(attempt int, err error, t fsihttp.ErrorType) {
				log.Warn().Err(err).Int("attempt", attempt).Str("class", fsihttp.ErrorTypeName(t)).Msg("retrying transfer")
			},
		},
		user:     cfg.User,
		password: cfg.Password,
	}
	c.transport = &HTTPTransport{
		base:    cfg.BaseURL(),
		rc:      rc,
		stream:  streamClient,
		limiter: ratelimit.NewRateLimiter(cfg.RequestsPerSecond, float64(cfg.Burst)),
		reauth:  c.reauthenticate,
		agent:   userAgent(version.Version),
	}
	return c, nil
}

// Transport exposes the JSON transport, for custom queue items.
func (c *Client) Transport() Transport {
	return c.transport
}

// Config returns the configuration the client was built from.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// LoggedIn reports whether a session is established.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// AccessLevel returns the access level reported at login.
func (c *Client) AccessLevel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

type loginReply struct {
	StatusCode  int    `json:"statuscode"`
	AccessLevel string `json:"accessLevel"`
}

// Login opens a session. The credentials are kept for re-login after the
// session expires.
func (c *Client) Login(ctx context.Context, user, password string) error {
	form := url.Values{"username": {user}, "password": {password}}
	var reply loginReply
	err := c.transport.PostJSON(ctx, "/fsi/service/login", form, &reply,
		withoutRelogin(), WithSubject(user))
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.user, c.password = user, password
	c.loggedIn = true
	c.access = reply.AccessLevel
	c.mu.Unlock()

	log.Debug().Str("user", user).Str("access", reply.AccessLevel).Msg("logged in")
	return nil
}

// Logout ends the session. Logging out without a session is a no-op.
func (c *Client) Logout(ctx context.Context) error {
	if !c.LoggedIn() {
		return nil
	}
	_, err := c.transport.GetBool(ctx, "/fsi/service/logout", nil, withoutRelogin(),
		IgnoreStatus(nethttp.StatusUnauthorized, nil))

	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
	return err
}

// reauthenticate runs one login for all callers that hit an expired session
// at the same time.
func (c *Client) reauthenticate(ctx context.Context) error {
	c.mu.Lock()
	user, password := c.user, c.password
	c.mu.Unlock()
	if user == "" {
		return ErrNotLoggedIn
	}

	_, err, shared := c.relogin.Do("login", func() (interface{}, error) {
		log.Info().Str("user", user).Msg("session expired, logging in again")
		return nil, c.Login(ctx, user, password)
	})
	if shared {
		log.Debug().Msg("joined pending re-login")
	}
	if err != nil {
		return fmt.Errorf("re-login failed: %w", err)
	}
	return nil
}

// ServerInfo is the free-form server description.
type ServerInfo map[string]any

// Version returns the server version, if reported.
func (s ServerInfo) Version() string {
	v, _ := s["version"].(string)
	return v
}

// ServerInfo fetches /fsi/service/serverinfo. It does not need a session.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	info := ServerInfo{}
	if err := c.transport.GetJSON(ctx, "/fsi/service/serverinfo", nil, &info, withoutRelogin()); err != nil {
		return nil, err
	}
	return info, nil
}

// withRetry runs a transfer attempt under the retry policy. Attempts that
// cannot be repeated should return errNoRetry wrapped around their error.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	var final error
	err := fsihttp.ExecuteWithRetry(ctx, c.retry, func() error {
		err := op()
		var nr *noRetry
		if errors.As(err, &nr) {
			final = nr.err
			return nil
		}
		return err
	})
	if final != nil {
		return final
	}
	return err
}

type noRetry struct{ err error }

func (n *noRetry) Error() string { return n.err.Error() }
func (n *noRetry) Unwrap() error { return n.err }
