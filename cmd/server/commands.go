package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sujalbistaa/confessly/internal/auth"
	"github.com/sujalbistaa/confessly/internal/config"
	"github.com/sujalbistaa/confessly/internal/db"
	routes "github.com/sujalbistaa/confessly/internal/http"
	"github.com/sujalbistaa/confessly/internal/logging"
	"github.com/sujalbistaa/confessly/internal/metrics"
	"github.com/sujalbistaa/confessly/internal/models"
	"github.com/sujalbistaa/confessly/internal/service"
	"github.com/sujalbistaa/confessly/internal/store"
	"github.com/sujalbistaa/confessly/internal/validate"
	"github.com/sujalbistaa/confessly/internal/ws"
)

const shutdownTimeout = 5 * time.Second

// app is the state shared by every command after PersistentPreRunE.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "confessly",
		Short:         "Anonymous confession board",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: a.serve,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Path to a config file (yaml, toml or json)")
	flags.String("port", "", "HTTP listen port")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("database-url", "", "Database URL (postgres:// or sqlite://)")
	_ = a.v.BindPFlag("server.port", flags.Lookup("port"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("database.url", flags.Lookup("database-url"))

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and websocket server (default)",
			RunE:  a.serve,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			RunE:  a.migrate,
		},
		a.grantCmd(),
	)
	return rootCmd
}

func (a *app) init() error {
	loaded, err := config.LoadDotEnv()
	if err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if !loaded {
		log.Debug("no .env file found, reading from environment")
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) openDB() (*gorm.DB, error) {
	database, err := db.Open(a.cfg.Database.URL, a.log)
	if err != nil {
		return nil, err
	}
	a.log.Info("running database migrations")
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, err
	}
	return database, nil
}

func (a *app) migrate(*cobra.Command, []string) error {
	database, err := a.openDB()
	if err != nil {
		return err
	}
	a.log.Info("migrations complete")
	return db.Close(database)
}

func (a *app) grantCmd() *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "grant-admin",
		Short: "Grant the admin role (or --role) to an existing account",
		Example: "  confessly grant-admin --email mod@example.com\n" +
			"  confessly grant-admin --email mod@example.com --role moderator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch role {
			case models.RoleAdmin, models.RoleModerator, models.RoleUser:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			addr, err := validate.Email(email)
			if err != nil {
				return err
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close(database)

			st := store.New(database)
			u, err := st.FindUserByEmail(cmd.Context(), addr)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no account for %s, sign up first", addr)
			}
			if err != nil {
				return err
			}
			if err := st.GrantRole(cmd.Context(), u.ID, role); err != nil {
				return err
			}
			a.log.Info("role granted", zap.String("user_id", u.ID), zap.String("role", role))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&role, "role", models.RoleAdmin, "Role to grant")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close(database)
	st := store.New(database)

	m, err := metrics.New()
	if err != nil {
		return err
	}

	hub := ws.NewHub(a.log, ws.WithClientGauge(m.WebsocketClients))
	go hub.Run(ctx)

	board := service.NewBoard(st, a.log)
	board.Watch(hub)
	defer board.Close()

	authSvc := auth.NewService(st, a.cfg.Session.TTL, a.log)
	listener := authSvc.OnStateChange(func(change auth.StateChange) {
		a.log.Info("auth state changed",
			zap.String("event", string(change.Event)),
			zap.String("user_id", change.Session.UserID))
		m.ActiveSessions.Set(float64(authSvc.ActiveSessions()))
	})
	defer listener.Close()

	env := &routes.Env{
		Confessions: service.NewConfessions(st, hub, m, a.log),
		Reactions:   service.NewReactions(st, hub, m, a.log),
		Feed:        service.NewFeed(board, a.cfg.Feed.TrendingDays, nil),
		Admin:       service.NewAdmin(st, board, hub, m, a.log, nil),
		Auth:        authSvc,
		Hub:         hub,
		Log:         a.log,
		SessionTTL:  a.cfg.Session.TTL,
	}

	if !a.cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.SetupRoutes(ctx, router, env, routes.Options{
		CORSOrigin: a.cfg.CORS.Origin,
		StaticDir:  a.cfg.Server.StaticDir,
		Metrics:    m,
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	a.log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("server exiting")
	return nil
}
