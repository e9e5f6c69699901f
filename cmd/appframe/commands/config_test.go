package commands

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile("appframe.json5", []byte(`{
		hostname: "file.example.com",
		username: "file-user",
		protocol: "http",
		cookie_file: "/tmp/session.cookies",
		timeout_seconds: 5,
	}`), 0o600))

	env := map[string]string{
		"APPFRAME_LOGIN": "env-user",
		"APPFRAME_PWD":   "env-pass",
	}
	cfg, err := LoadConfig("appframe.json5", func(k string) string { return env[k] }, Config{
		Hostname: "flag.example.com",
	})
	require.NoError(t, err)

	diff := cmp.Diff(Config{
		Hostname:       "flag.example.com",
		Username:       "env-user",
		Password:       "env-pass",
		Protocol:       "http",
		CookieFile:     "/tmp/session.cookies",
		TimeoutSeconds: 5,
	}, cfg)
	require.Empty(t, diff)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig("appframe.json5", func(string) string { return "" }, Config{
		Hostname: "portal.example.com",
		Username: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, "portal.example.com", cfg.Hostname)
	if cache, err := os.UserCacheDir(); err == nil {
		require.Equal(t, filepath.Join(cache, "appframe", "portal.example.com.cookies"), cfg.CookieFile)
	}
}

func TestValidate(t *testing.T) {
	require.Error(t, Config{Username: "alice"}.Validate())
	require.Error(t, Config{Hostname: "portal.example.com"}.Validate())
	require.NoError(t, Config{Hostname: "portal.example.com", Username: "alice"}.Validate())
}

func TestRequestOptions(t *testing.T) {
	opts, err := requestOptions(
		[]string{"Accept: text/html", "x-custom:  one "},
		[]string{"ProjectID=P16-1157", "page=2"},
		`{"name":"value"}`,
	)
	require.NoError(t, err)
	require.Equal(t, http.Header{
		"Accept":   {"text/html"},
		"X-Custom": {"one"},
	}, opts.Header)
	require.Equal(t, url.Values{
		"ProjectID": {"P16-1157"},
		"page":      {"2"},
	}, opts.Query)
	require.Equal(t, `{"name":"value"}`, opts.Body)
	require.Equal(t, "application/json; charset=UTF-8", opts.ContentType)
}

func TestRequestOptionsInvalid(t *testing.T) {
	_, err := requestOptions([]string{"no-colon"}, nil, "")
	require.Error(t, err)

	_, err = requestOptions(nil, []string{"no-equals"}, "")
	require.Error(t, err)

	_, err = requestOptions(nil, nil, "{not json")
	require.Error(t, err)
}

func TestRequestOptionsEmpty(t *testing.T) {
	opts, err := requestOptions(nil, nil, "")
	require.NoError(t, err)
	require.Nil(t, opts.Header)
	require.Nil(t, opts.Query)
	require.Nil(t, opts.Body)
}
