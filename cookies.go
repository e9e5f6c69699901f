package appframe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	AuthCookieName    = "AppframeWebAuth"
	SessionCookieName = "AppframeWebSession"
)

func isSessionCookie(name string) bool {
	return name == AuthCookieName || name == SessionCookieName
}

// SessionCookies returns both session cookies, or nil unless both are set.
func (c *Client) SessionCookies() map[string]SessionCookie {
	host := c.base.Hostname()
	cookies := make(map[string]SessionCookie, 2)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ck := range c.jar.AllCookies() {
		if !isSessionCookie(ck.Name) || !domainMatch(host, ck.Domain) {
			continue
		}
		meta, ok := c.observed[ck.Name]
		if !ok || meta.Value != ck.Value {
			meta = cookieMeta{HostOnly: strings.TrimPrefix(ck.Domain, ".") == host}
		}
		cookies[ck.Name] = SessionCookie{
			Creation: meta.Creation,
			HTTPOnly: ck.HttpOnly,
			HostOnly: meta.HostOnly,
			Path:     ck.Path,
			Secure:   ck.Secure,
			Value:    ck.Value,
		}
	}

	if len(cookies) != 2 {
		return nil
	}
	return cookies
}

func (c *Client) hasCookie(name string) bool {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == name {
			return true
		}
	}
	return false
}

func (c *Client) clearCookies() {
	c.jar.RemoveAll()

	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.observed)
}

// observeCookies records the attributes the jar does not expose for the
// session cookies set by the portal.
func (c *Client) observeCookies(_ *resty.Client, res *resty.Response) error {
	if res.RawResponse == nil || res.RawResponse.Request == nil ||
		res.RawResponse.Request.URL.Hostname() != c.base.Hostname() {
		return nil
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ck := range res.Cookies() {
		if !isSessionCookie(ck.Name) {
			continue
		}
		if ck.MaxAge < 0 || (!ck.Expires.IsZero() && !ck.Expires.After(now)) {
			delete(c.observed, ck.Name)
			continue
		}
		meta, ok := c.observed[ck.Name]
		if !ok {
			meta.Creation = now
		}
		meta.HostOnly = ck.Domain == ""
		meta.Value = ck.Value
		c.observed[ck.Name] = meta
	}
	return nil
}

func metaFile(cookieFile string) string {
	return cookieFile + ".meta"
}

// loadMeta restores the cookie metadata written by saveMeta. A missing file
// means nothing was recorded yet.
func (c *Client) loadMeta() error {
	if c.config.CookieFile == "" {
		return nil
	}
	data, err := os.ReadFile(metaFile(c.config.CookieFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	observed := make(map[string]cookieMeta)
	if err := json.Unmarshal(data, &observed); err != nil {
		return fmt.Errorf("cookie metadata %s: %w", metaFile(c.config.CookieFile), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, meta := range observed {
		if isSessionCookie(name) {
			c.observed[name] = meta
		}
	}
	return nil
}

func (c *Client) saveMeta() error {
	if c.config.CookieFile == "" {
		return nil
	}

	c.mu.Lock()
	data, err := json.Marshal(c.observed)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(metaFile(c.config.CookieFile), data, 0o600)
}

func domainMatch(host, domain string) bool {
	domain = strings.TrimPrefix(domain, ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}
