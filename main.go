package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbolis/dcforms/app"
	"github.com/mbolis/dcforms/config"
	"github.com/mbolis/dcforms/database"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/log"
	"github.com/mbolis/dcforms/routes"
	"github.com/spf13/cobra"
)

const annotationClientOnly = "client-only"

func main() {
	root := &cobra.Command{
		Use:           "dcforms",
		Short:         "Marketing forms, popups and POS signup for dry cleaners",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cfg, finish := config.Bind(root.PersistentFlags())
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return fmt.Errorf("config.dotenv: %w", err)
		}
		// client-side commands do not need server settings
		if err := finish(); err != nil && cmd.Annotations[annotationClientOnly] == "" {
			return err
		}
		if cfg.Debug {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	}

	root.AddCommand(
		serveCmd(cfg),
		migrateCmd(cfg),
		posCmd(cfg),
		userCmd(cfg),
		logCmd(cfg),
		simulateCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatal("main:", err)
	}
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DBUrl)
	if err != nil {
		return nil, fmt.Errorf("db.open: %w", err)
	}
	return db, nil
}

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			handler := routes.Wire(app.New(db, *cfg))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = runServer(ctx, *cfg, handler)
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("Shutting down")
		srv.Shutdown(shutdown)
	}()

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			log.Info("Database schema is up to date")
			return nil
		},
	}
}

func posCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pos",
		Short: "POS integration tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Test the connection to the configured POS system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			a := app.New(db, *cfg)
			adapter, err := a.Adapter(cmd.Context())
			if err != nil {
				return err
			}
			res, err := adapter.TestConnection(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", adapter.Name(), res.Message)
			for k, v := range res.Details {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", k, v)
			}
			if !res.Success {
				return errors.New("connection test failed")
			}
			return nil
		},
	})
	return cmd
}

func userCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage admin users",
	}

	var password, roles string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create or update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("DCF_USER_PASSWORD")
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err = httpx.CreateUser(cmd.Context(), db, args[0], password, roles); err != nil {
				return err
			}
			log.Infof("User %s saved with roles %q", args[0], roles)
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "password (default $DCF_USER_PASSWORD)")
	add.Flags().StringVar(&roles, "roles", "admin", "comma-separated roles")
	cmd.AddCommand(add)
	return cmd
}

func logCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Integration log maintenance",
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete integration log entries older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := database.NewIntegrationLog(db).Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			log.Infof("Pruned %d integration log entries", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the oldest entry to keep")
	cmd.AddCommand(prune)
	return cmd
}
