package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/SwissDataScienceCenter/rentals-gateway/internal/authclient"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/credentials"
	"github.com/SwissDataScienceCenter/rentals-gateway/internal/gwerrors"
	"github.com/spf13/cobra"
)

const (
	envBaseURL  string = "RENTALS_BASE_URL"
	envPassword string = "RENTALS_PASSWORD"
)

var logLevel = new(slog.LevelVar)

type rootOptions struct {
	baseURL        string
	credentialsDir string
	debug          bool
}

func defaultCredentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rentals"
	}
	return filepath.Join(home, ".config", "rentals")
}

func newRootCmd() *cobra.Command {
	opts := rootOptions{}
	cmd := &cobra.Command{
		Use:           "rentalsctl",
		Short:         "Command line access to the rental API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				logLevel.Set(slog.LevelDebug)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", os.Getenv(envBaseURL), "base URL of the rental API (or set "+envBaseURL+")")
	cmd.PersistentFlags().StringVar(&opts.credentialsDir, "credentials-dir", defaultCredentialsDir(), "directory where credentials are kept")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newLoginCmd(&opts), newLogoutCmd(&opts), newWhoamiCmd(&opts), newGetCmd(&opts))
	return cmd
}

func (o *rootOptions) client(cmd *cobra.Command) (*authclient.Client, error) {
	if o.baseURL == "" {
		return nil, fmt.Errorf("the rental API base URL is not set, use --base-url or %s", envBaseURL)
	}
	baseURL, err := url.Parse(o.baseURL)
	if err != nil {
		return nil, err
	}
	store, err := credentials.NewDiskStore(o.credentialsDir)
	if err != nil {
		return nil, err
	}
	return authclient.NewClient(
		authclient.WithBaseURL(baseURL),
		authclient.WithCredentialStore(store),
		authclient.WithSessionExpiredHandler(func(context.Context, error) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Your session has expired, run `rentalsctl login` again.")
		}),
	)
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(envPassword)
			}
			if username == "" || password == "" {
				return fmt.Errorf("a username and a password are required")
			}
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			session, err := client.Login(cmd.Context(), authclient.LoginRequest{Username: username, Password: password})
			var statusErr *authclient.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
				return fmt.Errorf("invalid username or password")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", username, session.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", "account password (or set "+envPassword+")")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			err = client.Logout(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			session, err := client.Session(cmd.Context())
			if err != nil {
				return err
			}
			if !session.Authenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in (%s)\n", session.Role)
			return nil
		},
	}
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "get <path>",
		Short:   "Send an authenticated GET request and print the answer",
		Example: "rentalsctl get /properties/?city=Zurich",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(cmd)
			if err != nil {
				return err
			}
			target, err := resolve(client.BaseURL(), args[0])
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Accept", "application/json")
			res, err := client.Do(req)
			if errors.Is(err, gwerrors.ErrSessionExpired) {
				return fmt.Errorf("not logged in")
			}
			if err != nil {
				return err
			}
			defer res.Body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), res.Body)
			if err != nil {
				return err
			}
			if res.StatusCode >= 400 {
				return fmt.Errorf("the rental API answered with %s", res.Status)
			}
			return nil
		},
	}
}

// resolve joins a path, optionally with a query string, to the base URL.
func resolve(baseURL *url.URL, path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("expected a path relative to the base URL, got %q", path)
	}
	target := *baseURL
	target.Path = strings.TrimSuffix(target.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	target.RawPath = ""
	target.RawQuery = ref.RawQuery
	return target.String(), nil
}
