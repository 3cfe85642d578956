package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gym-session/internal/domain"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	Long: `Sign in to the identity provider and store the session for later commands.

Examples:
  gymctl login -u me@example.com                 # Password (prompted when not given)
  gymctl login --code me@example.com             # Email a one-time code, then enter it
  gymctl login --oauth google                    # Print the provider consent URL`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringP("identifier", "u", "", "email or username for password login")
	loginCmd.Flags().String("password", "", "password (prefer the prompt or GYMCTL_PASSWORD)")
	loginCmd.Flags().String("code", "", "email address for one-time code login")
	loginCmd.Flags().String("oauth", "", "social sign-in provider, e.g. google")
	loginCmd.Flags().String("return-to", "", "where the provider sends the browser after oauth")
	loginCmd.MarkFlagsMutuallyExclusive("identifier", "code", "oauth")
	loginCmd.MarkFlagsOneRequired("identifier", "code", "oauth")
}

func runLogin(cmd *cobra.Command, args []string) error {
	identifier, _ := cmd.Flags().GetString("identifier")
	password, _ := cmd.Flags().GetString("password")
	email, _ := cmd.Flags().GetString("code")
	provider, _ := cmd.Flags().GetString("oauth")
	returnTo, _ := cmd.Flags().GetString("return-to")

	ctx := cmd.Context()
	app, closeApp, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer closeApp()

	in := bufio.NewReader(cmd.InOrStdin())

	var session *domain.Session
	switch {
	case provider != "":
		url, err := app.Kratos.SignInWithOAuth(ctx, provider, returnTo)
		if err != nil {
			return fmt.Errorf("starting %s sign-in: %w", provider, err)
		}
		printer.Info("Open this URL in your browser to continue:")
		printer.Print("%s", url)
		return nil

	case email != "":
		flowID, err := app.Kratos.SendLoginCode(ctx, email)
		if err != nil {
			return fmt.Errorf("sending login code: %w", err)
		}
		printer.Info("A sign-in code was sent to %s", email)
		code, err := prompt(cmd, in, "Code: ", false)
		if err != nil {
			return err
		}
		session, err = app.Kratos.SignInWithCode(ctx, flowID, email, code)
		if err != nil {
			return loginError(err)
		}

	default:
		if password == "" {
			password = os.Getenv("GYMCTL_PASSWORD")
		}
		if password == "" {
			if password, err = prompt(cmd, in, "Password: ", true); err != nil {
				return err
			}
		}
		session, err = app.Kratos.SignInWithPassword(ctx, identifier, password)
		if err != nil {
			return loginError(err)
		}
	}

	state := app.Session.Start(ctx)
	if session.Identity != nil && session.Identity.Email != "" {
		printer.Success("Signed in as %s", session.Identity.Email)
	} else {
		printer.Success("Signed in")
	}
	return printer.RenderAuthState(state)
}

func loginError(err error) error {
	switch {
	case errors.Is(err, domain.ErrAuthFailed):
		return errors.New("sign-in failed: check your credentials")
	case errors.Is(err, domain.ErrInvalidCode):
		return errors.New("sign-in failed: the code is invalid or expired")
	default:
		return fmt.Errorf("sign-in failed: %w", err)
	}
}

// prompt reads one line. Secrets are read without echo when stdin is a terminal.
func prompt(cmd *cobra.Command, in *bufio.Reader, label string, secret bool) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)

	if f, ok := cmd.InOrStdin().(*os.File); ok && secret && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no input given")
	}
	return line, nil
}
