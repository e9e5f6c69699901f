package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	debug      *bool
	overrides  Config
	noPersist  *bool

	cfg Config
)

func init() {
	flags := rootCmd.PersistentFlags()
	configPath = flags.String("config", "appframe.json5", "Config file, searched for from the working directory upwards.")
	debug = flags.Bool("debug", false, "Enable debug logging.")
	noPersist = flags.Bool("no-persist", false, "Keep the session in memory only.")
	flags.StringVar(&overrides.Hostname, "host", "", "Portal hostname, overrides APPFRAME_HOSTNAME.")
	flags.StringVar(&overrides.Username, "user", "", "Username, overrides APPFRAME_LOGIN.")
	flags.StringVar(&overrides.Protocol, "protocol", "", "URL scheme, https by default.")
	flags.StringVar(&overrides.CookieFile, "cookie-file", "", "Where to keep session cookies between runs.")
}

var rootCmd = &cobra.Command{
	Use:           "appframe",
	Short:         "appframe is a CLI for making authenticated requests to an Appframe portal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if *debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		loaded, err := LoadConfig(*configPath, os.Getenv, overrides)
		if err != nil {
			return err
		}
		if *noPersist {
			loaded.CookieFile = ""
		}
		cfg = loaded
		return nil
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
