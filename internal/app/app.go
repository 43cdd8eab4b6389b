// Package app wires storage, presence state, the side pipeline and both
// transports into one process.
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"match-chat/auth"
	"match-chat/contract"
	grpcserver "match-chat/infrastructure/grpc/server"
	"match-chat/infrastructure/httpapi"
	"match-chat/infrastructure/ws"
	"match-chat/internal"
	"match-chat/observability"
	"match-chat/repositories"
	"match-chat/runtime"
	"match-chat/runtime/workers"
	"match-chat/services"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

type App struct {
	log    *slog.Logger
	config internal.Config

	db           *badger.DB
	users        *repositories.UserRepository
	matches      *repositories.MatchRepository
	orchestrator *runtime.Orchestrator
	chatServer   *grpcserver.ChatServer
	grpcServer   *grpc.Server
	health       *health.Server
	httpServer   *http.Server

	httpListener   net.Listener
	grpcListener   net.Listener
	cancelSessions context.CancelFunc
}

// New opens the store and binds both listeners. Nothing is served before Run.
func New(config internal.Config, log *slog.Logger) (*App, error) {
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING).
		WithValueLogFileSize(config.BadgerValueLogSize))
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	a := &App{log: log, config: config, db: db}
	a.users = repositories.NewUserRepository(db)
	a.matches = repositories.NewMatchRepository(db)
	posts := repositories.NewPostRepository(db, log)
	var directory contract.MatchDirectory
	if config.CheckMatchExists {
		directory = a.matches
	}

	// Presence state and its side pipeline
	coordinator := runtime.NewCoordinator(log, runtime.NewRegistry(), runtime.NewMembershipTable(), a.users, posts,
		runtime.CoordinatorConfig{
			MaxContentLength: config.MaxContentLength,
			PersistTimeout:   config.PersistTimeout,
			LookupTimeout:    config.LookupTimeout,
			HistoryLimit:     config.HistoryLimit,
		}).WithHistory(posts)
	if directory != nil {
		coordinator.WithMatchDirectory(directory)
	}
	metrics := observability.NewMetrics(coordinator)
	a.orchestrator = runtime.NewOrchestrator(log, workers.NewSupervisor(log, config.RestartInterval), coordinator, metrics,
		runtime.OrchestratorConfig{
			EventBufferSize:       config.EventBufferSize,
			SinkTimeout:           config.SinkTimeout,
			LivenessTimeout:       config.LivenessTimeout,
			LivenessSweepInterval: config.LivenessSweepInterval,
			EnableModeration:      config.EnableModeration,
			CharReplacement:       replacement,
		})

	authenticator := auth.NewAuthenticator(config.AuthSecret)
	if !authenticator.Enabled() {
		log.Warn("AUTH_SECRET is empty, connections are not authenticated")
	}
	chatService := services.NewChatService(coordinator, metrics)

	// HTTP: WebSocket sessions, presence, history, health and metrics
	wsHandler := ws.NewHandler(log, chatService, authenticator, metrics, ws.Config{
		BufferSize:     config.ConnectionBufferSize,
		PingInterval:   config.PingInterval,
		PingTimeout:    config.PingTimeout,
		OriginPatterns: config.Origins(),
	})
	router := httpapi.NewRouter(log, chatService, wsHandler, metrics, directory, posts, httpapi.RouterConfig{
		AllowedOrigins: config.Origins(),
		HistoryLimit:   config.HistoryLimit,
	})
	// Sessions inherit this context, Shutdown does not reach hijacked connections.
	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	a.cancelSessions = cancelSessions
	a.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return sessionCtx },
	}

	// gRPC: the same sessions over a bidirectional stream
	a.chatServer = grpcserver.NewChatServer(log, chatService, metrics, config.ConnectionBufferSize, config.PingInterval)
	a.grpcServer, a.health = grpcserver.NewGRPCServer(a.chatServer, authenticator, grpcserver.Config{
		PingInterval: config.PingInterval,
		PingTimeout:  config.PingTimeout,
	})

	if a.httpListener, err = net.Listen("tcp", config.HTTPAddress()); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to listen on %s: %w", config.HTTPAddress(), err)
	}
	if a.grpcListener, err = net.Listen("tcp", config.GRPCAddress()); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to listen on %s: %w", config.GRPCAddress(), err)
	}
	return a, nil
}

func (a *App) HTTPAddr() string { return a.httpListener.Addr().String() }

func (a *App) GRPCAddr() string { return a.grpcListener.Addr().String() }

func (a *App) Users() *repositories.UserRepository { return a.users }

func (a *App) Matches() *repositories.MatchRepository { return a.matches }

// Run serves until ctx is done or a server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator failed to start: %w", err)
	}

	errChan := make(chan error, 2)
	go func() {
		a.log.Info("Starting HTTP server", "address", a.HTTPAddr(), "at", time.Now().UTC())
		if err := a.httpServer.Serve(a.httpListener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		a.log.Info("Starting gRPC server", "address", a.GRPCAddr(), "at", time.Now().UTC())
		if err := a.grpcServer.Serve(a.grpcListener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		a.log.Error("Server failed, shutting down", "error", runErr)
	case <-a.orchestrator.Done():
		if ctx.Err() == nil {
			runErr = stderrors.New("supervisor stopped unexpectedly")
		}
	}

	a.shutdown()
	a.log.Info("Program stopped cleanly")
	return runErr
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()

	a.health.Shutdown()
	a.chatServer.Shutdown()
	a.cancelSessions()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("HTTP shutdown incomplete", "error", err)
	}
	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		a.grpcServer.Stop()
	}
	a.orchestrator.Stop()
}

func (a *App) close() {
	a.cancelSessions()
	for _, l := range []net.Listener{a.httpListener, a.grpcListener} {
		if l != nil {
			_ = l.Close()
		}
	}
	a.log.Info("Closing BadgerDB...")
	_ = a.db.Close()
}
