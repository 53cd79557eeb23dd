package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/folio/internal/api"
	"github.com/kalambet/folio/internal/cms"
	"github.com/kalambet/folio/internal/config"
	"github.com/kalambet/folio/internal/content"
	"github.com/kalambet/folio/internal/cvtext"
	"github.com/kalambet/folio/internal/maintenance"
	"github.com/kalambet/folio/internal/pipeline"
	"github.com/kalambet/folio/internal/proxy"
	"github.com/kalambet/folio/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the folio server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running folio server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show folio system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// services is the wired object graph shared by the server, MCP and local
// commands.
type services struct {
	cms     *cms.Client
	content *content.Loader
	cv      *cvtext.Extractor
	prompt  *pipeline.Builder
	llm     *proxy.Client
}

func newServices(cfg config.Config) *services {
	cmsClient := cms.NewClient(cfg.CMS.BaseURL, cfg.CMS.Token)
	loader := content.NewLoader(cmsClient)
	extractor := cvtext.New(cvtext.Options{})
	return &services{
		cms:     cmsClient,
		content: loader,
		cv:      extractor,
		prompt:  pipeline.NewBuilder(loader, extractor, cfg.PromptTTL()),
		llm:     proxy.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL).WithModel(cfg.LLM.Model),
	}
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "folio.pid")
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

func serverAddr(cfg config.Config) string {
	return net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
}

func localBaseURL(cfg config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "folio version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.RequireLLM(); err != nil {
		printWarning("chat disabled: %v", err)
	}
	if err := cfg.RequireCMS(); err != nil {
		printWarning("serving default content: %v", err)
	}
	if cfg.Server.AdminToken == "" {
		slog.Info("owner endpoints disabled, set FOLIO_ADMIN_TOKEN to enable them")
	}

	// Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(localBaseURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("folio is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("folio is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	svc := newServices(cfg)

	// The first iteration warms the prompt cache; later ones run at the
	// prompt TTL so expired prompts are rebuilt off the request path.
	worker := maintenance.NewWorker(store, svc.prompt, cfg.Retention(), cfg.PromptTTL())
	go worker.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Prompt:          svc.prompt,
		LLM:             svc.llm,
		Content:         svc.content,
		Store:           store,
		LogInteractions: cfg.Storage.LogInteractions,
		MaxTokens:       cfg.LLM.MaxTokens,
		RateLimit:       cfg.Relay.RateLimit,
		Burst:           cfg.Relay.Burst,
		CV: api.CVProxyConfig{
			CMSBaseURL: cfg.CMS.BaseURL,
			ExtraHosts: cfg.ExtraMediaHosts(),
		},
		AdminToken: cfg.Server.AdminToken,
		TrustProxy: cfg.Server.TrustProxy,
	})

	addr := serverAddr(cfg)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "folio listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
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
		printError("folio is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop folio (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to folio (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(localBaseURL(cfg) + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", serverAddr(cfg))
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("CMS", "%s", configuredLabel(cfg.CMS.BaseURL))
	printStatus("LLM", "%s (%s)", cfg.LLM.Model, configuredLabel(cfg.LLM.APIKey))
	printStatus("Relay limit", "%d/min, burst %d", cfg.Relay.RateLimit, cfg.Relay.Burst)
	printStatus("Prompt TTL", "%s", cfg.PromptTTL())

	if running && cfg.Server.AdminToken != "" {
		c := &apiClient{baseURL: localBaseURL(cfg), token: cfg.Server.AdminToken, httpClient: client}
		var stats storage.InteractionStats
		if resp, err := c.get(context.Background(), "/api/interactions/stats"); err == nil && decodeJSON(resp, &stats) == nil {
			printStatus("Interactions (24h)", "%d, %d failed, avg %.0fms", stats.Total, stats.Failed, stats.AvgLatencyMs)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func configuredLabel(v string) string {
	if v == "" {
		return "not configured"
	}
	if strings.HasPrefix(v, "http") {
		return v
	}
	return "configured"
}
