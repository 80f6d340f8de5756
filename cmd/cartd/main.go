// cartd serves a persistent shopping cart.
// HTTP for the dashboard, JSON API and MCP clients; optionally MCP over stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gomarketplace/cartd/internal/app"
	"github.com/gomarketplace/cartd/internal/dashboard"
	"github.com/gomarketplace/cartd/internal/policy"
	"github.com/gomarketplace/cartd/internal/repository"
	"github.com/gomarketplace/cartd/internal/telemetry"
	carttools "github.com/gomarketplace/cartd/internal/tools/cart"
)

// Version is set by -ldflags at build time.
var Version = "dev"

const instructions = `cartd holds a single shopping cart. Use get_cart to see it, add_to_cart to add one unit
of a product, and increment_item / decrement_item to change quantities. The cart is also
readable as the cart://current resource. Changes are pushed as notifications/cart_update.`

func main() {
	// Handle CLI subcommands before starting the server.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			os.Exit(runStatusCommand(os.Stdout))
		case "--version", "-v", "version":
			fmt.Println("cartd " + Version)
			return
		}
	}

	// Load config
	tmpLogger := log.New(os.Stderr, "[cartd] ", log.LstdFlags|log.Lshortfile)
	cfg := loadConfig(tmpLogger)
	pol := policy.New(cfg)

	// Set up logging
	logger := setupLogger(pol.LogFile())
	logger.Println("Starting cartd...")
	logger.Printf("Log file: %s", pol.LogFile())
	logger.Printf("Namespace: %s, persistence: %s, zero quantity: %s", pol.Namespace(), pol.PersistMode(), pol.ZeroPolicy())

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Ignore(syscall.SIGHUP)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Tracing goes to the log, never to stdout (stdout may carry MCP stdio).
	tracer, shutdownTracing, err := telemetry.Setup(ctx, pol.Tracing(), Version, logger.Writer())
	if err != nil {
		logger.Fatalf("Tracing: %v", err)
	}

	// Storage
	sc := pol.StorageConfig()
	storage, err := repository.NewStorage(ctx, sc, logger)
	if err != nil {
		logger.Fatalf("Storage (%s): %v", sc.Driver, err)
	}
	logger.Printf("Storage: %s", describeStorage(sc))

	store := app.NewCartStore(storage, pol, logger, app.WithTracer(tracer))

	// Session registry for connected MCP clients
	registry := app.NewSessionRegistry()

	// Session store for push notifications (holds actual ClientSession objects)
	sessions := newSessionStore()

	hooks := &server.Hooks{}
	hooks.AddBeforeInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest) {
		session := server.ClientSessionFromContext(ctx)
		if session == nil {
			return
		}
		client := ""
		if message != nil {
			ci := message.Params.ClientInfo
			client = ci.Name
			logger.Printf("Client: %s %s, Protocol: %s", ci.Name, ci.Version, message.Params.ProtocolVersion)
		}
		sessions.set(session.SessionID(), session)
		registry.AddSession(session.SessionID(), client)
		logger.Printf("Client session registered: %s", session.SessionID())
	})
	hooks.AddBeforeAny(func(ctx context.Context, id any, method mcp.MCPMethod, message any) {
		session := server.ClientSessionFromContext(ctx)
		if session == nil || method == mcp.MethodInitialize {
			return
		}
		// A reaped session that talks again is registered afresh.
		if !registry.TouchSession(session.SessionID()) {
			sessions.set(session.SessionID(), session)
			registry.AddSession(session.SessionID(), "")
			logger.Printf("Client session re-registered: %s", session.SessionID())
		}
	})
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Calling tool: %s", message.Params.Name)
		}
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		sid := session.SessionID()
		if info, ok := registry.Session(sid); ok {
			logger.Printf("Client session unregistered: %s (client=%q, connected %s)",
				sid, info.Client, time.Since(info.ConnectedAt).Round(time.Second))
		} else {
			logger.Printf("Client session unregistered: %s", sid)
		}
		registry.RemoveSession(sid)
		sessions.remove(sid)
	})

	// Sessions that vanish without unregistering would otherwise keep receiving pushes.
	reaper := app.NewSessionReaper(registry, logger, app.WithOnReap(func(info app.SessionInfo) {
		sessions.remove(info.ID)
	}))
	go reaper.Start(ctx)

	mcpServer := server.NewMCPServer(
		"cartd",
		Version,
		server.WithInstructions(instructions),
		server.WithToolHandlerMiddleware(carttools.Provider(store)),
		server.WithHooks(hooks),
		server.WithResourceCapabilities(false, true), // subscribe=false, listChanged=true
	)
	carttools.Register(mcpServer, store, logger)

	// Build push function for the notifier: pushes to all connected sessions.
	pushFunc := func(method string, params any) error {
		for _, sid := range registry.SessionIDs() {
			session := sessions.get(sid)
			if session == nil || !session.Initialized() {
				continue
			}
			notification := mcp.JSONRPCNotification{
				JSONRPC: "2.0",
				Notification: mcp.Notification{
					Method: method,
					Params: mcp.NotificationParams{AdditionalFields: map[string]any{"params": params}},
				},
			}
			select {
			case session.NotificationChannel() <- notification:
			default:
				logger.Printf("Notifier: push to %s dropped (channel full)", sid)
			}
		}
		return nil
	}

	notifier := app.NewNotifier(pol.SignalFilePath(), store, registry.HasClients, pushFunc, logger)
	store.SetNotifier(notifier)
	go notifier.Start(ctx)

	store.Start(ctx)

	// Start HTTP server in background (dashboard, JSON API, MCP over HTTP)
	httpShutdown := startHTTPServer(mcpServer, store, storage, registry, pol, cfg.HTTPPort, logger)

	if cfg.Stdio {
		logger.Println("Stdio ready")
		stdioSrv := server.NewStdioServer(mcpServer)
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("Stdio server stopped: %v", err)
		}
		// Stdio client disconnected -- shut everything down
		cancel()
	} else {
		<-ctx.Done()
	}

	httpShutdown()
	reaper.Stop()
	notifier.Stop()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := store.Close(closeCtx); err != nil {
		logger.Printf("Warning: cart writes still pending at shutdown: %v", err)
	}
	stats := store.PersistStats()
	logger.Printf("Persisted %d write(s), %d failed", stats.Written, stats.Failed)

	if err := repository.Close(storage); err != nil {
		logger.Printf("Warning: close storage: %v", err)
	}
	if err := shutdownTracing(closeCtx); err != nil {
		logger.Printf("Warning: tracing shutdown: %v", err)
	}

	logger.Println("Server stopped")
}

// startHTTPServer starts the HTTP server in the background. Returns a shutdown function.
// Uses net.Listen to support port 0 (auto-assign) for running multiple instances.
func startHTTPServer(mcpServer *server.MCPServer, store *app.CartStore, storage app.Storage, registry *app.SessionRegistry, pol *policy.Policy, port int, logger *log.Logger) func() {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Fatalf("HTTP listen: %v", err)
	}
	actualPort := ln.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://localhost:%d", actualPort)

	logger.Printf("HTTP server on :%d", actualPort)
	logger.Printf("  MCP clients connect at:  %s/mcp", baseURL)
	logger.Printf("  Dashboard:               %s/dashboard", baseURL)
	logger.Printf("  Cart API:                %s/api/cart", baseURL)

	sseSrv := server.NewSSEServer(mcpServer, server.WithBaseURL(baseURL))
	streamSrv := server.NewStreamableHTTPServer(mcpServer)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Handle("/sse", sseSrv)
	r.Handle("/message", sseSrv)
	r.Handle("/mcp", streamSrv)

	dashOpts := []dashboard.HandlerOption{dashboard.WithSessions(registry)}
	if p, ok := storage.(dashboard.Pinger); ok {
		dashOpts = append(dashOpts, dashboard.WithPinger(p))
	}
	dashboard.NewHandler(store, pol.Namespace(), dashOpts...).RegisterRoutes(r)

	httpServer := &http.Server{
		Handler:           otelhttp.NewHandler(r, "cartd"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}
}

// sessionStore holds active ClientSession objects for push notifications.
type sessionStore struct {
	mu   sync.RWMutex
	data map[string]server.ClientSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{data: make(map[string]server.ClientSession)}
}

func (ss *sessionStore) set(id string, s server.ClientSession) {
	ss.mu.Lock()
	ss.data[id] = s
	ss.mu.Unlock()
}

func (ss *sessionStore) get(id string) server.ClientSession {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.data[id]
}

func (ss *sessionStore) remove(id string) {
	ss.mu.Lock()
	delete(ss.data, id)
	ss.mu.Unlock()
}

// setupLogger creates a logger that writes to a log file and optionally stderr.
// When stderr is a terminal (interactive use), logs go to both stderr and the file.
// When stderr is redirected, logs go only to the file.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[cartd] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[cartd] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	// Add stderr if it's a terminal, or if there's no log file (always need at least one output).
	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), "[cartd] ", log.LstdFlags|log.Lshortfile)
}

// loadConfig loads configuration from CART_CONFIG or defaults.
func loadConfig(logger *log.Logger) *policy.Config {
	cfg := policy.DefaultConfig()
	if configPath := os.Getenv("CART_CONFIG"); configPath != "" {
		var err error
		cfg, err = policy.LoadConfig(configPath)
		if err != nil {
			logger.Printf("Warning: failed to load config %s: %v, using defaults", configPath, err)
			cfg = policy.DefaultConfig()
		}
	}
	return cfg
}

func describeStorage(sc policy.StorageConfig) string {
	switch sc.Driver {
	case policy.DriverSQLite:
		return "sqlite " + sc.Path
	case policy.DriverRedis:
		return "redis " + sc.RedisAddr
	default:
		return sc.Driver
	}
}
