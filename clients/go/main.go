// collab is the command line client for CollabSphere.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/internal/config"
)

// app holds what every command needs. It is filled in by the root command's
// PersistentPreRunE.
type app struct {
	cfg    *config.Client
	logger zerolog.Logger
	auth   *collabsphere.AuthState
	client *collabsphere.Client
}

func main() {
	a := &app{}
	root := newRootCmd(a)
	if err := root.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var baseURL string

	root := &cobra.Command{
		Use:           "collab",
		Short:         "CollabSphere command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if baseURL != "" {
				os.Setenv("COLLAB_URL", baseURL)
			}
			a.cfg = config.LoadClient()

			level, err := zerolog.ParseLevel(a.cfg.LogLevel)
			if err != nil {
				level = zerolog.WarnLevel
			}
			a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
				Level(level).
				With().
				Timestamp().
				Logger()

			a.auth, err = collabsphere.NewAuthState(a.cfg.ConfigDir)
			if err != nil {
				return fmt.Errorf("load saved login: %w", err)
			}
			a.client = collabsphere.NewClient(a.cfg.BaseURL, a.auth)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", "", "server URL (default $COLLAB_URL or http://localhost:8080)")

	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newUserCmd(a),
		newWorkspacesCmd(a),
		newReadCmd(a),
		newPostCmd(a),
		newChatCmd(a),
		newHealthCmd(a),
	)
	return root
}

func newRegisterCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(password)
			if err != nil {
				return err
			}
			cred, err := a.client.Register(cmd.Context(), collabsphere.RegisterRequest{
				Username: args[0],
				Email:    email,
				Password: pw,
			})
			if err != nil {
				return err
			}
			if err := a.auth.Login(cred); err != nil {
				return err
			}
			fmt.Printf("Registered as %s (%s)\n", cred.Identity.Username, cred.Identity.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (default $COLLAB_PASSWORD, else prompt)")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and save the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(password)
			if err != nil {
				return err
			}
			cred, err := a.client.Login(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}
			if err := a.auth.Login(cred); err != nil {
				return err
			}
			exp, _ := cred.ExpiresAt()
			fmt.Printf("Logged in as %s until %s\n", cred.Identity.Username, exp.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (default $COLLAB_PASSWORD, else prompt)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.auth.Logout(); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(user)
			return nil
		},
	}
}

func newUserCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "user <user-id>",
		Short: "Show a user's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.client.GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(user)
			return nil
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

// readPassword returns flag, $COLLAB_PASSWORD or a line read from stdin.
func readPassword(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if pw := os.Getenv("COLLAB_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func reportError(err error) {
	switch collabsphere.KindOf(err) {
	case collabsphere.KindAuthRequired:
		fmt.Fprintln(os.Stderr, "Error: not logged in or session expired; run `collab login <username>`")
	case collabsphere.KindRoomUnavailable:
		fmt.Fprintln(os.Stderr, "Error: workspace not found or you are not a member:", err)
	default:
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
