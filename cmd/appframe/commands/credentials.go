package commands

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/penn-automate/appframe-go/internal/credentials"
	"github.com/spf13/cobra"
)

func init() {
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	rootCmd.AddCommand(credentialsCmd)
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manages the password kept in the OS keyring.",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Reads a password from stdin and stores it for the configured user.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s@%s: ", cfg.Username, cfg.Hostname)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return err
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return errors.New("empty password")
		}
		return credentials.NewStore(cfg.Hostname).Set(cfg.Username, password)
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Removes the stored password for the configured user.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return credentials.NewStore(cfg.Hostname).Delete(cfg.Username)
	},
}
