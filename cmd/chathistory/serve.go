package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chathistory/internal/account"
	"chathistory/internal/api"
	"chathistory/internal/auth"
	"chathistory/internal/chat"
	"chathistory/internal/worker"
)

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.BasicConfig.ServerAddress = addr
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server_address")
	return cmd
}

func serve(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	basic := a.cfg.BasicConfig
	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:        basic.MinWorkers,
		MaxWorkers:        basic.MaxWorkers,
		QueueSize:         basic.QueueSize,
		WorkerIdleTimeout: time.Duration(basic.WorkerIdleTimeout) * time.Second,
	})
	defer dispatcher.Stop()

	replyDelay := time.Duration(basic.ReplyDelayMillis) * time.Millisecond
	sessions := chat.NewRegistry(chat.Config{
		Store:      a.store,
		Scheduler:  dispatcher,
		Replier:    chat.NewCannedReplier(nil, 0),
		ReplyDelay: replyDelay,
	}, chat.NewInvalidator(a.rdb))

	authService := auth.NewService(a.db, a.rdb, time.Duration(basic.TokenTTLHours)*time.Hour)
	handler := api.NewHandler(sessions, account.NewService(a.db, a.store), authService, api.Options{
		ReplyDelay:     replyDelay,
		RateLimiter:    api.NewRateLimiter(time.Duration(basic.RateLimitWindow)*time.Second, basic.RateLimitCapacity),
		AllowedOrigins: basic.AllowedOrigins,
	})
	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              basic.ServerAddress,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return sessions.Listen(egCtx)
	})
	eg.Go(func() error {
		return authService.RunTokenCleaner(egCtx, auth.DefaultTokenCleanupInterval)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting chathistory server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return eg.Wait()
}
