package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	appframe "github.com/penn-automate/appframe-go"
	"github.com/penn-automate/appframe-go/internal/configutil"
	"github.com/penn-automate/appframe-go/internal/credentials"
)

type Config struct {
	Hostname       string `json:"hostname"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Protocol       string `json:"protocol"`
	CookieFile     string `json:"cookie_file"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	UserAgent      string `json:"user_agent"`
}

// LoadConfig layers the config file, then the APPFRAME_* environment, then
// flags. A missing config file is not an error.
func LoadConfig(path string, getenv func(string) string, flags Config) (Config, error) {
	cfg, err := configutil.ReadRecursively[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	env := Config{
		Hostname: getenv("APPFRAME_HOSTNAME"),
		Username: getenv("APPFRAME_LOGIN"),
		Password: getenv("APPFRAME_PWD"),
	}
	for _, layer := range []Config{env, flags} {
		if err := mergo.Merge(&cfg, layer, mergo.WithOverride); err != nil {
			return Config{}, err
		}
	}

	if cfg.CookieFile == "" && cfg.Hostname != "" {
		if dir, err := os.UserCacheDir(); err == nil {
			cfg.CookieFile = filepath.Join(dir, "appframe", cfg.Hostname+".cookies")
		}
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("no hostname configured, set APPFRAME_HOSTNAME or --host")
	}
	if c.Username == "" {
		return errors.New("no username configured, set APPFRAME_LOGIN or --user")
	}
	return nil
}

// newClient builds a client from the loaded config. Commands that only touch
// an existing session pass needPassword=false.
func newClient(needPassword bool) (*appframe.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	password := cfg.Password
	if password == "" && needPassword {
		stored, err := credentials.NewStore(cfg.Hostname).Get(cfg.Username)
		if err != nil {
			return nil, fmt.Errorf("no password configured (set APPFRAME_PWD or run `appframe credentials set`): %w", err)
		}
		password = stored
	}

	if cfg.CookieFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.CookieFile), 0o700); err != nil {
			return nil, err
		}
	}

	return appframe.NewClient(appframe.Config{
		Hostname:   cfg.Hostname,
		Username:   cfg.Username,
		Password:   password,
		Protocol:   cfg.Protocol,
		CookieFile: cfg.CookieFile,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		UserAgent:  cfg.UserAgent,
		Logger:     slog.Default(),
	})
}
