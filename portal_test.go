package appframe

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

//go:embed testdata/error_page.html
var errorPage string

const (
	testUsername = "alice"
	testPassword = "correct horse"
	testProject  = "P16-1157"
)

// fakePortal mimics the portal endpoints the client talks to.
type fakePortal struct {
	t      *testing.T
	server *httptest.Server

	logins  atomic.Int32
	logouts atomic.Int32

	// set before the first request
	loginStatus  int
	loginError   string
	loginBody    string
	logoutStatus int
	loginGate    chan struct{}
	loginEntered chan struct{}

	mu       sync.Mutex
	sessions map[string]bool
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{
		t:            t,
		sessions:     make(map[string]bool),
		loginEntered: make(chan struct{}, 16),
	}
	p.server = httptest.NewServer(p)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) host() string {
	return p.server.Listener.Addr().String()
}

func (p *fakePortal) client(password string) *Client {
	p.t.Helper()
	c, err := NewClient(Config{
		Hostname: p.host(),
		Username: testUsername,
		Password: password,
		Protocol: "http",
	})
	require.NoError(p.t, err)
	return c
}

// expire drops every session on the portal side.
func (p *fakePortal) expire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.sessions)
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.EscapedPath()
	switch {
	case strings.Contains(path, "%3F"):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, errorPage)
	case path == "/login" && r.Method == http.MethodPost:
		p.handleLogin(w, r)
	case path == "/logout" && r.Method == http.MethodPost:
		p.handleLogout(w, r)
	case path == "/api/elements/1.0/projects":
		p.authed(w, r, func() {
			writeJSON(w, []map[string]any{{"ProjectId": r.URL.Query().Get("ProjectID")}})
		})
	case path == "/api/always-unauthorized":
		w.WriteHeader(http.StatusUnauthorized)
	case path == "/portal":
		p.authed(w, r, func() {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, "<html>portal</html>")
		})
	case path == "/echo":
		body, _ := io.ReadAll(r.Body)
		writeJSON(w, map[string]any{
			"method":           r.Method,
			"query":            r.URL.RawQuery,
			"body":             string(body),
			"content-type":     r.Header.Get("Content-Type"),
			"x-requested-with": r.Header.Get("X-Requested-With"),
			"x-custom":         r.Header.Get("X-Custom"),
		})
	case path == "/empty-json":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	case path == "/bad-json":
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		io.WriteString(w, `{"ProjectId": `)
	case path == "/broken":
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "<!doctype html><html><body><h1>Oops</h1></body></html>")
	default:
		http.NotFound(w, r)
	}
}

func (p *fakePortal) authed(w http.ResponseWriter, r *http.Request, next func()) {
	if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	cookie, err := r.Cookie(AuthCookieName)
	p.mu.Lock()
	ok := err == nil && p.sessions[cookie.Value]
	p.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	next()
}

func (p *fakePortal) handleLogin(w http.ResponseWriter, r *http.Request) {
	n := p.logins.Add(1)
	select {
	case p.loginEntered <- struct{}{}:
	default:
	}
	if p.loginGate != nil {
		<-p.loginGate
	}

	if p.loginStatus != 0 {
		w.WriteHeader(p.loginStatus)
		return
	}
	if p.loginBody != "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, p.loginBody)
		return
	}
	if r.Header.Get("X-Requested-With") != "XMLHttpRequest" ||
		r.Header.Get("Content-Type") != "application/json; charset=UTF-8" ||
		r.Header.Get("Accept") != "application/json" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Remember *bool  `json:"remember"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Remember == nil || *body.Remember {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if body.Username != testUsername || body.Password != testPassword {
		res := map[string]any{"success": false}
		if p.loginError != "" {
			res["error"] = p.loginError
			res["attempts"] = 3
		}
		writeJSON(w, res)
		return
	}

	token := fmt.Sprintf("auth-%d", n)
	p.mu.Lock()
	p.sessions[token] = true
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: AuthCookieName, Value: token, Path: "/", MaxAge: 3600, HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: fmt.Sprintf("session-%d", n), Path: "/", MaxAge: 3600, HttpOnly: true})
	writeJSON(w, map[string]any{"success": true})
}

func (p *fakePortal) handleLogout(w http.ResponseWriter, r *http.Request) {
	p.logouts.Add(1)
	if p.logoutStatus != 0 {
		w.WriteHeader(p.logoutStatus)
		return
	}
	if cookie, err := r.Cookie(AuthCookieName); err == nil {
		p.mu.Lock()
		delete(p.sessions, cookie.Value)
		p.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: AuthCookieName, Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(v)
}
