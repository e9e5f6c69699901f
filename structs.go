package appframe

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	cookiejar "github.com/juju/persistent-cookiejar"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	Hostname string
	Username string
	Password string
	// Protocol is the URL scheme, "https" when empty. A trailing colon is accepted.
	Protocol string

	// CookieFile persists the session between processes. Empty keeps cookies in memory.
	CookieFile string
	Timeout    time.Duration
	UserAgent  string
	Logger     *slog.Logger
}

type Client struct {
	config Config
	base   *url.URL
	jar    *cookiejar.Jar
	http   *resty.Client
	logger *slog.Logger

	// logins holds the in-flight login, keyed by loginFlight.
	logins singleflight.Group

	// mu guards observed.
	mu       sync.Mutex
	observed map[string]cookieMeta

	loginCount  metric.Int64Counter
	reauthCount metric.Int64Counter
}

// RequestOptions customizes a single Get or Post. Header and Query are merged
// over the client defaults; values given here win.
type RequestOptions struct {
	Header http.Header
	Query  url.Values
	// Body is JSON-encoded unless it is a string or []byte. It is sent again
	// when a 401 triggers the retry, so an io.Reader is consumed by the first
	// attempt and the retry goes out without a body; pass a value instead.
	Body        any
	ContentType string
}

// SessionCookie is one of the two cookies that prove an authenticated session.
type SessionCookie struct {
	Creation time.Time `json:"creation"`
	HTTPOnly bool      `json:"httpOnly"`
	HostOnly bool      `json:"hostOnly"`
	Path     string    `json:"path"`
	Secure   bool      `json:"secure"`
	Value    string    `json:"value"`
}

// cookieMeta holds what the jar does not keep about a session cookie. It is
// persisted next to Config.CookieFile and only applies while Value matches.
type cookieMeta struct {
	Creation time.Time `json:"creation"`
	HostOnly bool      `json:"hostOnly"`
	Value    string    `json:"value"`
}
