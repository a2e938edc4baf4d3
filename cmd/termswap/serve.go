package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/api"
	"github.com/raaihank/termswap/internal/config"
	"github.com/raaihank/termswap/internal/rules"
	"github.com/raaihank/termswap/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and WebSocket event stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if _, err := config.Watch(configPath, a.log.Logger, a.configChanged); err != nil {
			return err
		}
		return a.serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func (a *app) serve(ctx context.Context) error {
	a.log.Info("Starting termswap",
		zap.String("version", buildVersion),
		zap.String("commit", buildCommit),
		zap.String("build_date", buildDate),
		zap.Int("port", a.cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hub *websocket.Hub
	if a.cfg.WebSocket.Enabled {
		ws := a.cfg.WebSocket
		hub = websocket.NewHub(&websocket.HubConfig{
			BroadcastOperations:  ws.Events.BroadcastOperations,
			BroadcastRules:       ws.Events.BroadcastRules,
			BroadcastConnections: ws.Events.BroadcastConnections,
			MaxConnections:       ws.MaxConnections,
			Username:             ws.Username,
			Password:             ws.Password,
			ReadBufferSize:       ws.ReadBufferSize,
			WriteBufferSize:      ws.WriteBufferSize,
			PingInterval:         ws.PingInterval,
			PongTimeout:          ws.PongTimeout,
			WriteTimeout:         ws.WriteTimeout,
			MaxMessageSize:       ws.MaxMessageSize,
		}, a.log.Logger)
		go hub.Run(ctx)
	}

	server := api.New(a.cfg, a.log, a.engine, hub)

	if a.cfg.Rules.Watch {
		watcher, err := rules.NewWatcher(a.holder, func(table *rules.Table, err error) {
			server.NotifyReload(table, err)
		}, a.log.Logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
		go watcher.Run(ctx)
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server listening", zap.Int("port", a.cfg.Server.Port))
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		a.log.Error("Server error", zap.Error(err))
		return err
	case <-ctx.Done():
		a.log.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			a.log.Error("Failed to shutdown server gracefully", zap.Error(err))
			return err
		}

		a.log.Info("Server shutdown complete")
		return nil
	}
}

// configChanged applies a new config file revision. Only the rule table is
// reloaded in place; other sections take effect on restart.
func (a *app) configChanged(next *config.Config) {
	if next.Workspace != a.cfg.Workspace || next.Storage.History != a.cfg.Storage.History ||
		next.Storage.ObfuscationMap != a.cfg.Storage.ObfuscationMap || next.Server.Port != a.cfg.Server.Port {
		a.log.Warn("Configuration change requires a restart to take full effect")
	}
	if _, err := a.engine.Reload(); err != nil {
		a.log.Error("Rules reload after config change failed", zap.Error(err))
	}
}
