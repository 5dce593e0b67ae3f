// Command emojistore serves per-user Lottie emoji documents over HTTP.
//
// Documents live under the data directory, one subdirectory per user.
// Configuration is read from CLI flags, a .env file in the data directory and
// server_config.yaml (quotas, rate limits, history author).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/maruel/emojistore/internal/server"
	"github.com/maruel/emojistore/internal/server/ipgeo"
	"github.com/maruel/emojistore/internal/server/ratelimit"
	"github.com/maruel/emojistore/internal/storage"
	"github.com/maruel/emojistore/internal/storage/git"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "emojistore: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8000", "Address to listen on (e.g., localhost:8000, :8000, 0.0.0.0:8000)")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	geoDB := flag.String("geo-db", "", "Path to MaxMind MMDB file for IP geolocation (optional)")
	history := flag.Bool("history", false, "Record every change in a git repository in the data directory")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	slog.SetDefault(newLogger(os.Stderr, ll))

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	overrideFromEnv(env, set, "http", "HTTP", httpAddr)
	overrideFromEnv(env, set, "log-level", "LOG_LEVEL", logLevel)
	overrideFromEnv(env, set, "geo-db", "GEO_DB", geoDB)
	if !set["history"] {
		if v := env["HISTORY"]; v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid HISTORY in .env: %w", err)
			}
			*history = b
		}
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return err
	}
	ll.Set(level)

	// ":8000" becomes "localhost:8000".
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	serverCfg, err := storage.LoadServerConfig(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", storage.ConfigFileName, err)
	}
	store, err := storage.NewDocumentStore(*dataDir)
	if err != nil {
		return err
	}

	var repo *git.Repo
	if *history {
		if repo, err = git.Open(*dataDir, serverCfg.History.AuthorName, serverCfg.History.AuthorEmail); err != nil {
			return err
		}
		// Capture whatever changed while the server was down.
		if err := repo.CommitAll(ctx, "startup"); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Change history enabled", "dir", repo.Dir())
	}

	var geoChecker *ipgeo.Checker
	if *geoDB != "" {
		if geoChecker, err = ipgeo.Open(*geoDB); err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = geoChecker.Close() }()
		slog.InfoContext(ctx, "IP geolocation enabled", "db", *geoDB)
	}

	limits := ratelimit.NewConfig(serverCfg.RateLimits.ReadRatePerMin, serverCfg.RateLimits.WriteRatePerMin)
	defer limits.Close()

	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	buildVersion, _, _, _ := getBuildInfo()
	cfg := &server.Config{
		ServerConfig: serverCfg,
		Version:      buildVersion,
		History:      repo,
		IPGeo:        geoChecker,
		Limits:       limits,
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(store, cfg),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "data", *dataDir, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("emojistore %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
