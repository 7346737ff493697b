package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridport/gridport/internal/importer"
	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/state"
	"github.com/gridport/gridport/internal/ws"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve live session updates over websocket",
	Long: `Start a websocket endpoint that broadcasts import session updates.
Connected clients receive a snapshot of the latest session, then a
session_update message whenever its status or processed count moves,
including for imports run by other gridport processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		hub := ws.NewHub(logger)
		a, err := buildApp(ctx, cfg, logger, ws.Sink{Hub: hub})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		hub.SetSnapshot(func() ([]byte, error) {
			st, err := state.Load("")
			if err != nil || st.LastSessionID == "" {
				return json.Marshal(struct{}{})
			}
			s, err := a.engine.GetSession(context.Background(), st.LastSessionID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(s)
		})
		go hub.Run()
		go followSessions(ctx, a, hub)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", hub.HandleWebSocket)
		mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			status := "ok"
			if err := a.store.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				status = "degraded"
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "version": version})
		})

		srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		fmt.Fprintf(os.Stderr, "Gridport session feed: ws://localhost:%d/ws\n", port)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
		}

		return nil
	},
}

// followSessions watches whichever session the CLI state points at and
// broadcasts its updates. When a new import starts (in any process) the
// state file moves on and a watch for the new session begins.
func followSessions(ctx context.Context, a *app, hub *ws.Hub) {
	watcher := importer.NewWatcher(a.sessions, 0)
	watched := ""
	for {
		st, err := state.Load("")
		if err == nil && st.LastSessionID != "" && st.LastSessionID != watched {
			watched = st.LastSessionID
			go func(id string) {
				_, err := watcher.Watch(ctx, id, func(s *session.ImportSession) {
					hub.BroadcastSessionUpdate(s)
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Warn("session watch ended", "session", id, "error", err)
				}
			}(watched)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config, 8240)")
	rootCmd.AddCommand(serveCmd)
}
