package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/oktotrack/console/internal/auth"
	"github.com/oktotrack/console/internal/guard"
	"github.com/oktotrack/console/internal/tokens"
	"github.com/oktotrack/console/pkg/logger"
	"github.com/spf13/cobra"
)

var errSessionInvalid = errors.New("session is not valid")

func newRootCmd(open opener) *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "trackctl",
		Short:         "Sign in to the traceability console and call its API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if logLevel != "" {
				logger.Init(logLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "debug|info|warn|error")

	// run opens the session stack, hydrates the state and hands it to fn.
	run := func(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.state.Init(ctx); err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			return fn(ctx, cmd, a, args)
		}
	}

	root.AddCommand(
		loginCmd(run),
		&cobra.Command{
			Use:   "logout",
			Short: "Forget the stored session",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				if err := a.auth.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
				return nil
			}),
		},
		statusCmd(run),
		&cobra.Command{
			Use:   "refresh",
			Short: "Exchange the refresh token for a new access token",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				if _, ok := a.auth.Refresh(ctx); !ok {
					return errSessionInvalid
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refreshed, %s\n", describeExpiry(a.state.Claims(), time.Now()))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "check",
			Short: "Validate the session locally and against the auth backend",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				if !a.coord.EnsureValid(ctx) {
					return errSessionInvalid
				}
				tok, err := a.auth.StoredToken(ctx)
				if err != nil {
					return err
				}
				if !a.auth.CheckRemoteValidity(ctx, tok, a.state.CompanyID()) {
					return errors.New("auth backend rejected the token")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			}),
		},
		watchCmd(run),
		getCmd(run),
	)
	return root
}

type runner func(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error

func loginCmd(run runner) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			if password == "" {
				p, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = p
			}
			res, err := a.auth.Login(ctx, auth.Credential{Identifier: email, Secret: password})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (company %s), %s\n",
				res.Claims.Email, res.Claims.CompanyID, describeExpiry(res.Claims, time.Now()))
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("TRACKCTL_PASSWORD"), "password; read from stdin when empty")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

type statusView struct {
	Authenticated bool        `json:"authenticated"`
	Email         string      `json:"email,omitempty"`
	Role          tokens.Role `json:"role,omitempty"`
	CompanyID     string      `json:"company_id,omitempty"`
	UserID        string      `json:"user_id,omitempty"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
}

func statusCmd(run runner) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: run(func(_ context.Context, cmd *cobra.Command, a *app, _ []string) error {
			snap := a.state.Snapshot()
			v := statusView{Authenticated: snap.IsAuthenticated}
			if c := snap.Claims; c != nil && snap.IsAuthenticated {
				v.Email, v.Role, v.CompanyID, v.UserID = c.Email, c.RoleOrDefault(), c.CompanyID, c.UserID
				if exp, ok := c.Expiry(); ok {
					v.ExpiresAt = &exp
				}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			if !v.Authenticated {
				fmt.Fprintln(out, "not logged in")
				return nil
			}
			fmt.Fprintf(out, "logged in as %s (%s, company %s), %s\n", v.Email, v.Role, v.CompanyID, describeExpiry(snap.Claims, time.Now()))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func watchCmd(run runner) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Guard a console path until the session ends or the command is interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			redirected := make(chan string, 1)
			nav := guard.NavigatorFunc(func(u string) {
				select {
				case redirected <- u:
				default:
				}
			})
			opts := []guard.Option{
				guard.WithLoginPath(a.cfg.Session.LoginPath),
				guard.WithRecheckDelay(a.cfg.Session.RecheckDelay),
				guard.WithInterval(a.cfg.Session.GuardInterval),
			}
			if interval > 0 {
				opts = append(opts, guard.WithInterval(interval))
			}
			g := guard.New(a.coord, a.state, a.auth, nav, opts...)
			defer g.Leave()

			out := cmd.OutOrStdout()
			if g.Enter(ctx, args[0]) == guard.Authorized {
				fmt.Fprintf(out, "authorized for %s\n", args[0])
			}
			select {
			case u := <-redirected:
				fmt.Fprintf(out, "session ended, sign in again at %s%s\n", a.cfg.Session.ConsoleURL, u)
				return errSessionInvalid
			case <-ctx.Done():
				return nil
			}
		}),
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "override the periodic check interval")
	return cmd
}

func getCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET a console API path with the session's bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			path := args[0]
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			var out json.RawMessage
			if err := a.api.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			var pretty any
			if err := json.Unmarshal(out, &pretty); err != nil {
				_, err = cmd.OutOrStdout().Write(append(out, '\n'))
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		}),
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func describeExpiry(c *tokens.Claims, now time.Time) string {
	exp, ok := c.Expiry()
	if !ok {
		return "no expiry"
	}
	if !exp.After(now) {
		return "expired"
	}
	return "expires in " + exp.Sub(now).Truncate(time.Second).String()
}
