package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"proof-leaderboard/auth"
	"proof-leaderboard/handlers"
	"proof-leaderboard/logger"
	"proof-leaderboard/routers"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the proof poller",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(configPath, true)
		if err != nil {
			return err
		}
		defer a.close()

		logger.Logger.Info("Starting leaderboard server...")

		h := handlers.NewHandler(auth.NewStaticAuthenticator(a.cfg.Auth.Users), a.jobs, a.board, a.poller)
		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:      routers.NewRouter(h, handlers.NewMetrics(a.registry), a.registry),
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Logger.Info("Server running on port", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			return a.poller.Run(ctx)
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Logger.Info("Shutdown signal received, exiting...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}
