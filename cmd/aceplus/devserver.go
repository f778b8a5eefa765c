package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/pavelanni/aceplus/internal/devserver"
	appI18n "github.com/pavelanni/aceplus/internal/i18n"
)

func devserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory backend for local development",
		Args:  cobra.NoArgs,
		RunE:  runDevserver,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":9027", "HTTP listen address")
	f.String("jwt-secret", "", "HS256 signing secret (or set ACEPLUS_JWT_SECRET)")
	f.String("questions", "", "Question bank JSON file (default: built-in bank)")
	f.StringSlice("users", []string{"student:student"}, "Accounts as id:password or id:password:10 for class 10")
	f.Duration("job-step", devserver.DefaultJobStep, "Simulated time to generate one question")
	f.Int("questions-per-exam", devserver.DefaultQuestionsPerExam, "Questions drawn into each exam")
	return cmd
}

// parseAccounts reads id:password[:10] entries.
func parseAccounts(entries []string) ([]devserver.Account, error) {
	accounts := make([]devserver.Account, 0, len(entries))
	for _, e := range entries {
		parts := strings.Split(e, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid user %q (want id:password or id:password:10)", e)
		}
		acc := devserver.Account{ID: parts[0], Password: parts[1]}
		if len(parts) == 3 {
			if parts[2] != "10" {
				return nil, fmt.Errorf("invalid class in %q (only 10 is recognized)", e)
			}
			acc.Class10 = true
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func runDevserver(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(v.GetString("lang")))

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return fmt.Errorf("jwt secret is required: set --jwt-secret flag or ACEPLUS_JWT_SECRET env var")
	}
	accounts, err := parseAccounts(v.GetStringSlice("users"))
	if err != nil {
		return err
	}
	cfg := devserver.Config{
		JWTSecret:        secret,
		Accounts:         accounts,
		JobStep:          v.GetDuration("job-step"),
		QuestionsPerExam: v.GetInt("questions-per-exam"),
	}
	if path := v.GetString("questions"); path != "" {
		if cfg.Bank, err = devserver.LoadBank(path); err != nil {
			return err
		}
	} else {
		// The sample tests draw on lessons of the built-in bank.
		cfg.Tests = devserver.DefaultTests()
	}

	srv, err := devserver.New(cfg)
	if err != nil {
		return fmt.Errorf("create devserver: %w", err)
	}
	defer srv.Close()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	srv.Routes(r)

	addr := v.GetString("addr")
	httpSrv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()

	slog.Info("starting devserver", "addr", addr, "users", len(accounts), "tests", len(cfg.Tests), "job_step", cfg.JobStep)
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(ctx, "DevserverListening", map[string]any{"Addr": addr}))

	select {
	case err := <-errc:
		return err
	case <-cmd.Context().Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
