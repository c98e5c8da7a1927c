package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cinnamona/bakery/internal/api"
	"github.com/cinnamona/bakery/internal/auth"
	"github.com/cinnamona/bakery/internal/config"
	"github.com/cinnamona/bakery/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bakery HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running bakery server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bakery server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}
		return showStatus(cmd.Context(), cfg, newAPIClient(cfg))
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "bakery.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// newLogger builds the process logger from the log config. Output goes to
// stderr.
func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore opens the configured backend. A seed dir replaces the bundled
// seed set.
func openStore(cfg config.Config, logger *slog.Logger) (*storage.Store, error) {
	opts := []storage.Option{storage.WithLogger(logger)}
	if cfg.Storage.SeedDir != "" {
		opts = append(opts, storage.WithSeeds(os.DirFS(cfg.Storage.SeedDir)))
	}
	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.CacheTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// adminCredentials returns the admin account. A plain text password from the
// environment is hashed here and never stored.
func adminCredentials(cfg config.Config, logger *slog.Logger) (auth.Credentials, error) {
	hash := cfg.Auth.AdminPasswordHash
	if hash == "" {
		logger.Warn("admin password given in plain text; set BAKERY_AUTH_ADMIN_PASSWORD_HASH instead (see `bakery hash-password`)")
		h, err := auth.HashPassword(cfg.Auth.AdminPassword)
		if err != nil {
			return auth.Credentials{}, err
		}
		hash = h
	}
	return auth.Credentials{Email: cfg.Auth.AdminEmail, PasswordHash: []byte(hash)}, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "bakery version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireAdmin(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	generated, err := config.EnsureJWTSecret(&cfg, config.NewSecretStore())
	if err != nil {
		return fmt.Errorf("initializing jwt secret: %w", err)
	}
	if generated {
		logger.Info("generated a new jwt secret")
	}
	issuer, err := auth.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	creds, err := adminCredentials(cfg, logger)
	if err != nil {
		return err
	}

	// Refuse to start twice on the same port.
	client := newAPIClient(cfg)
	pidPath := pidFilePath(cfg.Storage.DataDir)
	if resp, err := client.get(context.Background(), "/api/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("bakery is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("bakery is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := api.NewHandler(api.Deps{
		Store:          store,
		Issuer:         issuer,
		Credentials:    creds,
		UploadDir:      cfg.Upload.Dir,
		MaxUploadBytes: int64(cfg.Upload.MaxBytes),
		WhatsAppNumber: cfg.Order.WhatsAppNumber,
		StaticDir:      cfg.Server.StaticDir,
		AllowedOrigins: cfg.Origins(),
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bakery listening", "addr", cfg.Addr(), "backend", cfg.Storage.Backend, "data_dir", cfg.Storage.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("bakery is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop bakery (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to bakery (PID %d)", pid)
	return nil
}

type healthReport struct {
	Status           string `json:"status"`
	HasAdminEmail    bool   `json:"hasAdminEmail"`
	HasAdminPassword bool   `json:"hasAdminPassword"`
	HasJWTSecret     bool   `json:"hasJwtSecret"`
}

func showStatus(ctx context.Context, cfg config.Config, client *apiClient) error {
	resp, err := client.get(ctx, "/api/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health healthReport
		if err := decodeJSON(resp, &health); err != nil {
			printStatus("Server", "error (%v)", err)
		} else {
			printStatus("Server", "running on %s", client.baseURL)
			printStatus("Admin email", "%s", yesNo(health.HasAdminEmail))
			printStatus("Admin password", "%s", yesNo(health.HasAdminPassword))
			printStatus("JWT secret", "%s", yesNo(health.HasJWTSecret))

			if products, err := client.get(ctx, "/api/products"); err == nil {
				var list []map[string]any
				if decodeData(products, &list) == nil {
					printStatus("Products", "%d", len(list))
				}
			}
		}
	}

	printStatus("Backend", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Upload dir", "%s", cfg.Upload.Dir)
	return nil
}
