package appframe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	cookiejar "github.com/juju/persistent-cookiejar"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("github.com/penn-automate/appframe-go")
	meter  = otel.Meter("github.com/penn-automate/appframe-go")
)

func NewClient(cfg Config) (*Client, error) {
	if cfg.Hostname == "" {
		return nil, errors.New("appframe: hostname is required")
	}
	protocol := strings.TrimSuffix(cfg.Protocol, ":")
	if protocol == "" {
		protocol = "https"
	}
	base, err := url.Parse(protocol + "://" + cfg.Hostname)
	if err != nil {
		return nil, err
	}
	if base.Host == "" {
		return nil, fmt.Errorf("appframe: invalid hostname %q", cfg.Hostname)
	}

	jar, err := cookiejar.New(&cookiejar.Options{
		Filename:  cfg.CookieFile,
		NoPersist: cfg.CookieFile == "",
	})
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New()
	client.SetBaseURL(base.String())
	client.SetCookieJar(jar)
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(redirectPolicy(base.Hostname()), resty.FlexibleRedirectPolicy(10))
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	c := &Client{
		config:   cfg,
		base:     base,
		jar:      jar,
		http:     client,
		logger:   logger.With("host", base.Host),
		observed: make(map[string]cookieMeta),
	}
	client.OnAfterResponse(c.observeCookies)
	client.SetPreRequestHook(sendRawPath)
	if err := c.loadMeta(); err != nil {
		logger.Warn("ignoring cookie metadata", "err", err)
	}

	c.loginCount, err = meter.Int64Counter("appframe.logins")
	if err != nil {
		return nil, err
	}
	c.reauthCount, err = meter.Int64Counter("appframe.reauth")
	if err != nil {
		return nil, err
	}
	return c, nil
}

type noRedirectKey struct{}

// redirectPolicy follows redirects on the portal host only. Requests whose
// context carries noRedirectKey get the redirect response itself.
func redirectPolicy(hostname string) resty.RedirectPolicy {
	sameHost := resty.DomainCheckRedirectPolicy(hostname)
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if req.Context().Value(noRedirectKey{}) != nil {
			return http.ErrUseLastResponse
		}
		return sameHost.Apply(req, via)
	})
}

// Login authenticates with the configured credentials. Concurrent calls
// share one login request and its result.
func (c *Client) Login(ctx context.Context) LoginResult {
	ch := c.logins.DoChan(loginFlight, func() (any, error) {
		// the login outlives any single caller that gives up waiting on it
		return c.login(context.WithoutCancel(ctx)), nil
	})

	select {
	case <-ctx.Done():
		return LoginResult{Error: ctx.Err().Error()}
	case res := <-ch:
		result := res.Val.(LoginResult)
		result.Fields = maps.Clone(result.Fields)
		return result
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (c *Client) login(ctx context.Context) LoginResult {
	ctx, span := tracer.Start(ctx, "client:login")
	defer span.End()

	c.loginCount.Add(ctx, 1)

	if c.hasCookie(AuthCookieName) {
		c.Logout(ctx)
	}
	c.clearCookies()
	defer c.save(ctx)

	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Accept":           "application/json",
			"Content-Type":     "application/json; charset=UTF-8",
			"X-Requested-With": "XMLHttpRequest",
		}).
		SetBody(loginRequest{
			Username: c.config.Username,
			Password: c.config.Password,
		}).
		Post(loginPath)
	if err != nil {
		span.RecordError(err)
		return c.loginFailed(ctx, span, err.Error())
	}
	if !res.IsSuccess() {
		return c.loginFailed(ctx, span, fmt.Sprintf("Login failed (%d: %s)", res.StatusCode(), statusText(res)))
	}

	var body map[string]any
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		span.RecordError(err)
		return c.loginFailed(ctx, span, err.Error())
	}

	result := loginResultFromBody(body)
	if !result.Success {
		c.loginFailed(ctx, span, result.Error)
		return result
	}
	c.logger.DebugContext(ctx, "logged in", "username", c.config.Username)
	return result
}

func (c *Client) loginFailed(ctx context.Context, span trace.Span, msg string) LoginResult {
	span.SetStatus(codes.Error, msg)
	c.logger.DebugContext(ctx, "login failed", "username", c.config.Username, "err", msg)
	return LoginResult{Error: msg}
}

func loginResultFromBody(body map[string]any) LoginResult {
	success, _ := body["success"].(bool)
	backendErr, _ := body["error"].(string)

	var fields map[string]any
	for k, v := range body {
		if k == "success" || k == "error" {
			continue
		}
		if fields == nil {
			fields = make(map[string]any)
		}
		fields[k] = v
	}

	if success {
		return LoginResult{Success: true, Fields: fields}
	}
	msg := LoginFailedMessage
	if backendErr != "" {
		msg = "Login failed: " + backendErr
	}
	return LoginResult{Error: msg, Fields: fields}
}

// Logout ends the session on the portal. The local cookies are dropped
// whether or not the portal acknowledged it.
func (c *Client) Logout(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "client:logout")
	defer span.End()
	defer c.save(ctx)
	defer c.clearCookies()

	res, err := c.http.R().
		SetContext(context.WithValue(ctx, noRedirectKey{}, true)).
		SetHeaders(map[string]string{
			"Accept":           "application/json",
			"X-Requested-With": "XMLHttpRequest",
		}).
		Post(logoutPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "logout request failed")
		c.logger.WarnContext(ctx, "logout failed", "err", err)
		return false
	}
	// the portal answers a successful logout with 303 See Other
	if res.StatusCode() >= http.StatusBadRequest {
		span.SetStatus(codes.Error, res.Status())
		c.logger.WarnContext(ctx, "logout failed", "status", res.StatusCode())
		return false
	}
	c.logger.DebugContext(ctx, "logged out")
	return true
}

// Save writes the cookie jar to Config.CookieFile, and the cookie creation
// times next to it. It is a no-op for in-memory clients.
func (c *Client) Save() error {
	if err := c.jar.Save(); err != nil {
		return err
	}
	return c.saveMeta()
}

func (c *Client) save(ctx context.Context) {
	if err := c.Save(); err != nil {
		c.logger.WarnContext(ctx, "failed to save cookies", "file", c.config.CookieFile, "err", err)
	}
}

const (
	loginPath   = "/login"
	logoutPath  = "/logout"
	loginFlight = "login"
)
