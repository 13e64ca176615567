// Package app wires the copilot together and runs it as a Matrix bot.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parallels/devops-copilot/internal/copilot/conversation"
	"github.com/parallels/devops-copilot/internal/copilot/matrix"
	"github.com/parallels/devops-copilot/internal/copilot/observability"
)

// Config holds daemon configuration.
type Config struct {
	Core   CoreConfig
	Matrix matrix.Config

	// HTTPAddr is the address of the health/status/metrics server (e.g.
	// ":8080"). Empty disables it.
	HTTPAddr string

	// RegistryDebounce coalesces registry file change events.
	RegistryDebounce time.Duration

	// ExpireInterval is how often idle conversations are dropped. Defaults to
	// one minute.
	ExpireInterval time.Duration

	// StartupNotice is posted to every admin room on start when non-empty.
	StartupNotice string

	// ShutdownGrace is how long Stop waits for running turns before
	// cancelling them. Defaults to 30 seconds.
	ShutdownGrace time.Duration
}

// App is the Matrix bot.
type App struct {
	config       *Config
	core         *Core
	matrix       *matrix.Client
	healthServer *HealthServer
	turns        *turnGroup
}

// New builds the pipeline and the Matrix client. Nothing is started.
func New(config *Config) (*App, error) {
	a := &App{config: config, turns: newTurnGroup()}

	core, err := BuildCore(config.Core, a.reportProgress)
	if err != nil {
		return nil, err
	}
	a.core = core

	mcfg := config.Matrix
	mcfg.DB = core.Store.DB()
	client, err := matrix.New(&mcfg)
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.matrix = client

	if config.HTTPAddr != "" {
		a.healthServer = NewHealthServer(config.HTTPAddr, core)
		a.healthServer.Handle("/metrics", core.Metrics.Handler())
		slog.Info("app: health server configured", "addr", config.HTTPAddr)
	}
	return a, nil
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("app: health server failed to start, continuing without it", "err", err)
		}
	}

	if err := a.core.Registry.Watch(ctx, a.config.RegistryDebounce); err != nil {
		slog.Warn("app: registry hot reload disabled", "err", err)
	}

	go a.expireLoop(ctx)

	slog.Info("app: starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("app: start Matrix client: %w", err)
	}

	if a.config.StartupNotice != "" {
		for _, roomID := range a.config.Matrix.AdminRooms {
			if err := a.matrix.SendNotice(ctx, roomID, a.config.StartupNotice); err != nil {
				slog.Warn("app: startup notice", "room", roomID, "err", err)
			}
		}
	}

	slog.Info("app: copilot is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("app: shutting down")
	return nil
}

// Stop releases everything New acquired. Turns still running get the
// shutdown grace period to finish before they are cancelled.
func (a *App) Stop() {
	slog.Info("app: stopping Matrix client")
	a.matrix.Stop()

	grace := a.config.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	if a.turns.Drain(grace) {
		slog.Warn("app: cancelled turns still running at shutdown", "grace", grace)
	}

	if a.healthServer != nil {
		a.healthServer.Stop()
	}

	if err := a.core.Close(); err != nil {
		slog.Warn("app: close database", "err", err)
	}
}

// handleMessage runs each turn on its own goroutine so a slow pull does not
// stall the sync loop. Turns outlive the sync context; Stop drains them.
func (a *App) handleMessage(_ context.Context, msg matrix.Message) {
	a.turns.Go(func(turnCtx context.Context) {
		if err := a.matrix.SetTyping(turnCtx, msg.RoomID, true, 30*time.Second); err != nil {
			slog.Debug("app: set typing", "err", err)
		}
		defer func() {
			if err := a.matrix.SetTyping(turnCtx, msg.RoomID, false, 0); err != nil {
				slog.Debug("app: clear typing", "err", err)
			}
		}()

		reply := a.core.Handler.Handle(turnCtx, conversation.Turn{
			RoomID: msg.RoomID,
			Sender: msg.Sender,
			Text:   msg.Body,
		})
		if err := a.matrix.ReplyTo(turnCtx, msg.RoomID, msg.EventID, reply); err != nil {
			observability.WithTrace(turnCtx).Error("app: send reply", "room", msg.RoomID, "err", err)
		}
	})
}

// reportProgress posts progress notes into the room of the running turn.
func (a *App) reportProgress(ctx context.Context, message string) {
	turn, ok := conversation.TurnFromContext(ctx)
	if !ok || a.matrix == nil {
		return
	}
	if err := a.matrix.SendNotice(ctx, turn.RoomID, message); err != nil {
		observability.WithTrace(ctx).Warn("app: send progress", "room", turn.RoomID, "err", err)
	}
}

func (a *App) expireLoop(ctx context.Context) {
	interval := a.config.ExpireInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.core.Memory.Expire(); n > 0 {
				slog.Debug("app: expired idle conversations", "count", n)
			}
		}
	}
}
