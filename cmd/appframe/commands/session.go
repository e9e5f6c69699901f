package commands

import (
	"errors"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(cookiesCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in and keeps the session cookies.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(true)
		if err != nil {
			return err
		}

		result := client.Login(cmd.Context())
		if err := printJSON(result); err != nil {
			return err
		}
		return result.Err()
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Ends the current session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(false)
		if err != nil {
			return err
		}
		if !client.Logout(cmd.Context()) {
			return errors.New("logout was not acknowledged, local session cleared anyway")
		}
		return nil
	},
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Prints the session cookies of the current session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(false)
		if err != nil {
			return err
		}

		cookies := client.SessionCookies()
		if cookies == nil {
			return errors.New("not logged in")
		}

		names := make([]string, 0, len(cookies))
		for name := range cookies {
			names = append(names, name)
		}
		sort.Strings(names)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Value", "Path", "Secure", "HttpOnly", "HostOnly", "Created"})
		for _, name := range names {
			c := cookies[name]
			created := "-"
			if !c.Creation.IsZero() {
				created = c.Creation.Format("2006-01-02 15:04:05")
			}
			t.AppendRow(table.Row{name, c.Value, c.Path, c.Secure, c.HTTPOnly, c.HostOnly, created})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
