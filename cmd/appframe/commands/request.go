package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	appframe "github.com/penn-automate/appframe-go"
	"github.com/spf13/cobra"
)

var (
	headers []string
	query   []string
	data    string
)

func init() {
	for _, cmd := range []*cobra.Command{getCmd, postCmd} {
		cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra request header as 'Name: value'. Repeatable.")
		cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Extra query parameter as 'key=value'. Repeatable.")
		rootCmd.AddCommand(cmd)
	}
	postCmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body.")
}

var getCmd = &cobra.Command{
	Use:   "get <path> [-H 'Name: value'] [-q key=value]",
	Short: "Sends an authenticated GET request and prints the response.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, http.MethodGet, args[0])
	},
}

var postCmd = &cobra.Command{
	Use:   "post <path> [-d '<json>'] [-H 'Name: value'] [-q key=value]",
	Short: "Sends an authenticated POST request and prints the response.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, http.MethodPost, args[0])
	},
}

func runRequest(cmd *cobra.Command, method, path string) error {
	opts, err := requestOptions(headers, query, data)
	if err != nil {
		return err
	}
	client, err := newClient(true)
	if err != nil {
		return err
	}

	res, err := client.Request(cmd.Context(), method, path, opts)
	if err != nil {
		var failure *appframe.Failure
		if errors.As(err, &failure) {
			printJSON(failure)
		}
		return err
	}
	if text, ok := res.(string); ok {
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	}
	return printJSON(res)
}

func requestOptions(headers, query []string, data string) (*appframe.RequestOptions, error) {
	opts := &appframe.RequestOptions{}

	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		if opts.Header == nil {
			opts.Header = make(http.Header)
		}
		opts.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	for _, q := range query {
		key, value, ok := strings.Cut(q, "=")
		if !ok {
			return nil, fmt.Errorf("invalid query parameter %q, expected key=value", q)
		}
		if opts.Query == nil {
			opts.Query = make(url.Values)
		}
		opts.Query.Add(key, value)
	}

	if data != "" {
		if !json.Valid([]byte(data)) {
			return nil, errors.New("--data is not valid JSON")
		}
		opts.Body = data
		opts.ContentType = "application/json; charset=UTF-8"
	}
	return opts, nil
}
