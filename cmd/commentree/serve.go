package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/VitaminP8/commentree/internal/config"
	delivery "github.com/VitaminP8/commentree/internal/delivery/http"
	"github.com/VitaminP8/commentree/internal/delivery/http/middleware"
	"github.com/VitaminP8/commentree/internal/delivery/http/route"
	"github.com/VitaminP8/commentree/internal/section"
	"github.com/VitaminP8/commentree/internal/subscription"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve comment sections over HTTP and websocket",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	api, closeBackend, err := openBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	events := subscription.NewSubscriptionManager()
	registry := section.NewRegistry(api, section.Config{
		PageSize:    cfg.PageSize,
		MaxSections: cfg.MaxSections,
		Events:      events,
	}, logger)

	app := config.NewFiber()
	routes := route.RouteConfig{
		App:               app,
		Log:               logger,
		AuthMiddleware:    middleware.NewAuthMiddleware(logger, cfg.JWTSecret),
		CommentController: delivery.NewCommentController(registry, logger),
		EventController:   delivery.NewEventController(events, logger),
	}
	routes.SetupRoute()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", cfg.HTTPAddr))
		serveErr <- app.Listen(cfg.HTTPAddr)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
