package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/aceplus/internal/gateway"
	appI18n "github.com/pavelanni/aceplus/internal/i18n"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login USER_ID",
		Short: "Sign in and store the bearer token",
		Args:  cobra.ExactArgs(1),
		RunE:  runE(appOptions{quiet401: true}, runLogin),
	}
	f := cmd.Flags()
	f.String("password", "", "Password (or set ACEPLUS_PASSWORD; read from stdin when empty)")
	f.Bool("register", false, "Create the account first")
	return cmd
}

func runLogin(a *app, args []string) error {
	password := a.v.GetString("password")
	if password == "" {
		fmt.Fprint(a.cmd.ErrOrStderr(), "Password: ")
		line, err := bufio.NewReader(a.cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	login := a.api.Login
	if a.v.GetBool("register") {
		login = a.api.Register
	}
	resp, err := login(a.ctx, args[0], password)
	if err != nil {
		// Bad credentials are a 401 too; show the server's reason, not "session expired".
		var he *gateway.HTTPError
		if errors.As(err, &he) {
			return errors.New(he.Message)
		}
		return err
	}
	if resp.UserID == "" {
		resp.UserID = args[0]
	}
	if err := a.auth.Set(*resp); err != nil {
		return err
	}
	a.println(appI18n.Td(a.ctx, "SignedIn", map[string]any{"UserID": resp.UserID}))
	return nil
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			if err := a.auth.Clear(); err != nil {
				return err
			}
			a.println(appI18n.T(a.ctx, "SignedOut"))
			return nil
		}),
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			a.println(appI18n.Td(a.ctx, "SignedIn", map[string]any{"UserID": a.auth.UserID()}))
			return nil
		}),
	}
}
