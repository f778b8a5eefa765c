package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/aceplus/internal/api"
	"github.com/pavelanni/aceplus/internal/auth"
	"github.com/pavelanni/aceplus/internal/gateway"
	appI18n "github.com/pavelanni/aceplus/internal/i18n"
	"github.com/pavelanni/aceplus/internal/job"
	"github.com/pavelanni/aceplus/internal/notice"
	"github.com/pavelanni/aceplus/internal/session"
	"github.com/pavelanni/aceplus/internal/store"
	"github.com/pavelanni/aceplus/internal/upload"
)

// errReported means the error was already shown to the user.
var errReported = errors.New("reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aceplus",
		Short:         "Exam preparation client: turn photos of notes into practice exams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.String("api-url", "http://localhost:9027", "Backend base URL")
	f.String("db", "aceplus.db", "SQLite file holding local client state")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	f.Duration("timeout", gateway.DefaultTimeout, "Per-request timeout")
	f.Duration("long-timeout", gateway.LongTimeout, "Timeout for uploads and job submission")
	f.Duration("answers-ttl", session.DefaultTTL, "Drop cached answer sheets older than this")
	f.Int("answers-max", session.DefaultMaxSheets, "Keep at most this many cached answer sheets")
	f.String("log-level", "warn", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(
		loginCmd(), logoutCmd(), whoamiCmd(),
		uploadCmd(), generateCmd(),
		examCmd(), historyCmd(),
		leaderboardCmd(), updatesCmd(), statsCmd(), pruneCmd(),
		devserverCmd(),
	)
	return root
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ACEPLUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("aceplus")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/aceplus")
	v.AddConfigPath("/etc/aceplus")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app is the client wiring shared by every command that talks to the backend.
type app struct {
	v       *viper.Viper
	ctx     context.Context
	store   *store.Store
	auth    *auth.Context
	gw      *gateway.Client
	api     *api.Client
	cache   *session.Cache
	notices *notice.Tracker
	cmd     *cobra.Command
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.cmd.OutOrStdout(), format, args...)
}

func (a *app) println(args ...any) {
	fmt.Fprintln(a.cmd.OutOrStdout(), args...)
}

func (a *app) warn(msg string) {
	fmt.Fprintln(a.cmd.ErrOrStderr(), msg)
}

func (a *app) taker() *session.Taker {
	return session.NewTaker(a.api, a.cache)
}

type appOptions struct {
	// quiet401 suppresses the session-expired notice, for login.
	quiet401 bool
}

func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(v.GetString("lang")))

	st, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open client state: %w", err)
	}

	a := &app{v: v, ctx: ctx, store: st, cmd: cmd}
	var nav auth.Navigator
	if !opts.quiet401 {
		nav = auth.NavigatorFunc(func(string) {
			a.warn(appI18n.T(ctx, "SessionExpired"))
		})
	}
	a.auth = auth.New(st, nav)
	a.gw, err = gateway.New(gateway.Config{
		BaseURL:     v.GetString("api-url"),
		Timeout:     v.GetDuration("timeout"),
		LongTimeout: v.GetDuration("long-timeout"),
	}, a.auth)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.api = api.New(a.gw)
	a.cache = session.NewCache(st)
	a.notices = notice.NewTracker(st)

	if _, err := a.cache.Prune(v.GetDuration("answers-ttl"), v.GetInt("answers-max")); err != nil {
		slog.Warn("prune answer sheets", "error", err)
	}
	if first, err := a.notices.FirstVisit(); err == nil && first {
		a.warn(appI18n.T(ctx, "Welcome"))
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("close client state", "error", err)
	}
}

// runE adapts a command body to cobra, wiring the app and reporting errors
// in the user's language.
func runE(opts appOptions, fn func(a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.close()
		if err := fn(a, args); err != nil {
			if msg := explain(a.ctx, err); msg != "" {
				a.warn(msg)
			}
			return errReported
		}
		return nil
	}
}

// requireLogin fails early when no usable token is stored.
func (a *app) requireLogin() error {
	if !a.auth.Authenticated() {
		return errNotSignedIn
	}
	return nil
}

var errNotSignedIn = errors.New("not signed in")

// explain turns err into the message shown to the user. An empty result
// means the user has already been told.
func explain(ctx context.Context, err error) string {
	var (
		verr   *upload.ValidationError
		failed *job.FailedError
		netErr *gateway.NetworkError
		httpEr *gateway.HTTPError
	)
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		return ""
	case errors.Is(err, errNotSignedIn):
		return appI18n.T(ctx, "NotSignedIn")
	case errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, gateway.ErrTimeout):
		return appI18n.T(ctx, "RequestTimeout")
	case errors.As(err, &netErr):
		return appI18n.T(ctx, "NetworkError")
	case errors.As(err, &verr):
		switch verr.Reason {
		case upload.ReasonTooLarge:
			return appI18n.Td(ctx, "FileTooLarge", map[string]any{
				"Filename": verr.Filename,
				"Size":     humanize.IBytes(uint64(verr.Size)),
				"Limit":    humanize.IBytes(uint64(verr.Limit)),
			})
		default:
			return appI18n.Td(ctx, "FileNotImage", map[string]any{
				"Filename":    verr.Filename,
				"ContentType": verr.ContentType,
			})
		}
	case errors.Is(err, upload.ErrEmptyBatch), errors.Is(err, job.ErrNoFilenames):
		return appI18n.T(ctx, "NoImagesGiven")
	case errors.Is(err, job.ErrNoQuestionsExtracted):
		return appI18n.T(ctx, "NoQuestionsExtracted")
	case errors.Is(err, job.ErrJobDeadline):
		return appI18n.T(ctx, "GenerationTooLong")
	case errors.As(err, &failed):
		return appI18n.Td(ctx, "GenerationFailed", map[string]any{"Message": failed.Message})
	case errors.Is(err, session.ErrAlreadySubmitted):
		return appI18n.T(ctx, "AlreadySubmitted")
	case errors.As(err, &httpEr):
		return appI18n.Td(ctx, "ServerError", map[string]any{"Message": httpEr.Message})
	}
	return err.Error()
}
