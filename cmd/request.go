package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var requestCmd = &cobra.Command{
	Use:   "request METHOD PATH",
	Short: "Call the backend API with the current session",
	Long: `Send one request through the session pipeline. The bearer token is attached
automatically; a 401 triggers one session refresh and retry.

Examples:
  gymctl request GET /users/me
  gymctl request POST /workouts -d '{"name":"legs"}'
  gymctl request PUT /workouts/w1 -d @workout.json`,
	Args: cobra.ExactArgs(2),
	RunE: runRequest,
}

func init() {
	rootCmd.AddCommand(requestCmd)

	requestCmd.Flags().StringP("data", "d", "", "request body; @file reads it from a file")
	requestCmd.Flags().StringArrayP("header", "H", nil, "extra header, \"Name: value\"")
	requestCmd.Flags().BoolP("include", "i", false, "print the response status and headers")
}

// errSessionEnded is returned when the request ended the session.
var errSessionEnded = errors.New("session ended: sign in again with \"gymctl login\"")

func runRequest(cmd *cobra.Command, args []string) error {
	method := strings.ToUpper(args[0])
	path := args[1]
	data, _ := cmd.Flags().GetString("data")
	rawHeaders, _ := cmd.Flags().GetStringArray("header")
	include, _ := cmd.Flags().GetBool("include")

	header := http.Header{}
	header.Set("Accept", "application/json")
	for _, h := range rawHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q: want \"Name: value\"", h)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	var body io.Reader
	if data != "" {
		if file, ok := strings.CutPrefix(data, "@"); ok {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening request body: %w", err)
			}
			defer f.Close()
			body = f
		} else {
			body = strings.NewReader(data)
		}
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	}

	ctx := cmd.Context()
	app, closeApp, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer closeApp()

	resp, rc, err := app.Client.Raw(ctx, method, path, header, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if rc.Invalidated() {
		return errSessionEnded
	}

	out := cmd.OutOrStdout()
	if include {
		fmt.Fprintf(out, "%s %s\n", resp.Proto, resp.Status)
		for k, vs := range resp.Header {
			for _, v := range vs {
				fmt.Fprintf(out, "%s: %s\n", k, v)
			}
		}
		fmt.Fprintln(out)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
