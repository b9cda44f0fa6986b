// Package server wires the realtime core to its HTTP surface: the /ws
// upgrade endpoint and the health/stats endpoints queried by the REST side.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/HobbitNuggettel/Home-Hub-sub000/internal/realtime"
	"github.com/HobbitNuggettel/Home-Hub-sub000/internal/server/middleware"
	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/config"
	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state/statemanager"
	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/transport"
)

type App struct {
	logger     *slog.Logger
	conns      state.ConnectionRegistry
	rooms      state.RoomRegistry
	presence   state.PresenceTracker
	dispatcher *realtime.Dispatcher
	reaper     *realtime.Reaper
	wg         sync.WaitGroup
	http       *http.Server
	config     *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	conns := statemanager.NewConnectionRegistry(logger)
	rooms := statemanager.NewRoomRegistry(logger)
	presence := statemanager.NewPresenceTracker(logger)
	broadcaster := realtime.NewBroadcaster(logger, conns, rooms)
	dispatcher := realtime.NewDispatcher(logger, conns, rooms, presence, broadcaster)
	reaper := realtime.NewReaper(logger, conns, rooms, presence, cfg.Reaper.Interval, cfg.Reaper.PresenceTTL)

	app := &App{
		logger:     logger,
		conns:      conns,
		rooms:      rooms,
		presence:   presence,
		dispatcher: dispatcher,
		reaper:     reaper,
		config:     cfg,
		ctx:        rootCtx,
	}

	// Cycling closes the user's oldest connection to make room for a new one.
	connCycler := func(userID string) {
		oldest, found := conns.FindOldestUserConnection(userID)
		if found {
			logger.Info("Cycling connection: closing oldest",
				slog.String("userID", userID),
				slog.String("connID", oldest.ID.String()),
			)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth.Required, cfg.Server.Auth.JWTSecret),
			middleware.NewConnectionLimiter(logger, conns.UserConnectionCount, connCycler, cfg.Server.ConnectionLimit),
		),
	)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/api/realtime/stats", app.statsHandler)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app
}

func (a *App) Run() error {
	go a.reaper.Run(a.ctx)
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.Config{
			ReadTimeout: a.config.Transport.ReadTimeout,
			SendBuffer:  a.config.Transport.SendBuffer,
		},
		a.logger,
	)
	rec := a.conns.Register(conn, reqMeta.IP)
	conn.SetOnMessage(a.dispatcher.HandleMessage)
	conn.SetOnClose(a.dispatcher.HandleDisconnect)

	// An upgrade-time identity assertion from the auth layer enrolls the
	// connection immediately; otherwise the client must send authenticate.
	// This must complete before Run starts the read pump: the pump goroutine
	// reads the record's identity fields, and the record has a single
	// logical writer only while inbound events are not yet flowing. The
	// queued authenticated event is delivered once the write pump starts.
	if reqMeta.UserID != "" {
		if err := a.dispatcher.Authenticate(rec, reqMeta.UserID, reqMeta.Role); err != nil {
			connLogger.Error("Upgrade-time authentication failed", slog.Any("error", err))
			conn.Close(err)
			return
		}
	}
	conn.Run()

	connLogger.Info("Connection established", slog.String("connID", rec.ID.String()))
	<-conn.Done()
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// statsHandler exposes registry counts to the REST side's monitoring.
func (a *App) statsHandler(w http.ResponseWriter, _ *http.Request) {
	counts := a.conns.Counts()
	writeJSON(w, statsResponse{
		TotalConnections:   counts.TotalConnections,
		AuthenticatedUsers: counts.AuthenticatedUsers,
		AdminUsers:         counts.AdminUsers,
		ActiveRooms:        a.rooms.ActiveRooms(),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	})
}

// Shutdown stops the HTTP listener, closes every live connection, and waits
// for their goroutines to drain.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("Closing all active connections...")
	for _, rec := range a.conns.AllConnections() {
		rec.Transport.Close(errors.New("graceful shutdown"))
	}

	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
