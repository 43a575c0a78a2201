package main

import (
	"context"
	"encoding/json"
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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/outreach/internal/api"
	"github.com/kalambet/outreach/internal/calendly"
	"github.com/kalambet/outreach/internal/classify"
	"github.com/kalambet/outreach/internal/config"
	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/followup"
	"github.com/kalambet/outreach/internal/generation"
	"github.com/kalambet/outreach/internal/google"
	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/mail"
	"github.com/kalambet/outreach/internal/orchestrator"
	"github.com/kalambet/outreach/internal/profile"
	"github.com/kalambet/outreach/internal/scoremodel"
	"github.com/kalambet/outreach/internal/scoring"
	"github.com/kalambet/outreach/internal/storage"
	"github.com/kalambet/outreach/internal/worker"
)

const defaultOwnerID = "default"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the outreach server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		stdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(stdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running outreach server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show outreach system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp-stdio", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "outreach.pid")
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

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// mailbox is the Google side of the server: a sender and a sheet source,
// both absent until `outreach auth google` has stored a token.
type mailbox struct {
	creds  *google.Credentials
	gmail  *google.GmailSender
	sheets *google.SheetsExtractor
}

func connectGoogle(ctx context.Context, cfg config.Config) (*mailbox, error) {
	oauthCfg := google.NewOAuthConfig(google.OAuthSettings{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	})
	creds, err := google.NewCredentials(ctx, oauthCfg, google.TokenPath(cfg.Storage.DataDir))
	if err != nil {
		return nil, err
	}
	client := creds.HTTPClient()

	gsvc, err := google.NewGmailService(ctx, client, "")
	if err != nil {
		return nil, err
	}
	ssvc, err := google.NewSheetsService(ctx, client, "")
	if err != nil {
		return nil, err
	}
	return &mailbox{
		creds: creds,
		gmail: google.NewGmailSender(gsvc, google.GmailOptions{
			FromAddress: cfg.Email.FromAddress,
			MaxPerDay:   cfg.Email.MaxPerDay,
			Refresher:   creds,
		}),
		sheets: google.NewSheetsExtractor(ssvc),
	}, nil
}

// disconnectedSheets fails every import until a Google account is connected.
type disconnectedSheets struct{}

func (disconnectedSheets) ExtractLeads(context.Context, string, string, string) ([]lead.Lead, error) {
	return nil, google.ErrNoToken
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "outreach version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("outreach is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("outreach is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, engine.DetectConfig{
		Provider:         cfg.Engine.Provider,
		GeminiAPIKey:     cfg.Engine.GeminiAPIKey,
		GeminiModel:      cfg.Engine.GeminiModel,
		OpenRouterAPIKey: cfg.Engine.OpenRouterAPIKey,
		OpenRouterModel:  cfg.Engine.OpenRouterModel,
		MaxTokens:        cfg.Engine.MaxTokens,
		Temperature:      cfg.Engine.Temperature,
		Timeout:          cfg.Engine.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating generative engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	gen := generation.New(eng, generation.Config{
		DailyCap:                cfg.Generation.DailyCap,
		MinInterval:             cfg.Generation.MinInterval,
		RequestCacheTTL:         cfg.Generation.RequestCacheTTL,
		PersonalizationCacheTTL: cfg.Generation.PersonalizationCacheTTL,
	})
	scorer := scoring.New(scoremodel.Load(cfg.Scoring.ModelPath), gen, scoring.Weights{
		ML:               cfg.Scoring.MLWeight,
		AI:               cfg.Scoring.AIWeight,
		Authority:        cfg.Scoring.AuthorityWeight,
		Relevance:        cfg.Scoring.RelevanceWeight,
		Base:             cfg.Scoring.AIBase,
		CompanyRelevance: cfg.Scoring.CompanyRelevance,
	})
	classifier := classify.New(gen)
	profileMgr := profile.NewManager(store)
	settings := func() lead.CampaignSettings {
		s := profileMgr.CampaignSettings()
		if s.FromName == "" {
			s.FromName = cfg.Email.FromName
		}
		return s
	}

	var sender mail.Sender = mail.DryRunSender{}
	var sheets worker.LeadSource = disconnectedSheets{}
	box, err := connectGoogle(ctx, cfg)
	switch {
	case err == nil:
		sender, sheets = box.gmail, box.sheets
		slog.Info("google account connected")
	case errors.Is(err, google.ErrNoToken):
		printWarning("Google account not connected, emails are logged instead of sent")
	default:
		slog.Warn("google integration unavailable, emails are logged instead of sent", "error", err)
	}

	cal := calendly.NewClient(cfg.Calendly.APIKey, cfg.Calendly.BaseURL)

	followups := followup.NewScheduler(store, gen, sender, cfg.Email.MaxFollowUps,
		followup.WithDefaultSettings(settings),
		followup.WithBusinessHours(cfg.Email.BusinessHoursStart, cfg.Email.BusinessHoursEnd))
	orch := orchestrator.New(store, gen, sender, orchestrator.Config{
		BatchSize:      cfg.Automation.BatchSize,
		BatchInterval:  time.Duration(cfg.Automation.ProcessingIntervalMinutes) * time.Minute,
		MaxConcurrent:  cfg.Automation.MaxConcurrentCampaigns,
		FollowUpDelay:  time.Duration(cfg.Email.FollowUpDelayHours) * time.Hour,
		ScoreThreshold: cfg.Automation.LeadScoreThreshold,
		MaxLeads:       cfg.Automation.MaxQueryResults,
	},
		orchestrator.WithPlanner(followups),
		orchestrator.WithDefaultSettings(settings),
	)
	restored, err := orch.Restore()
	if err != nil {
		slog.Warn("restoring campaign jobs", "error", err)
	} else if restored > 0 {
		slog.Info("restored campaign jobs", "count", restored)
	}
	go orch.Run(ctx)

	w := worker.New(store, 500*time.Millisecond, worker.WithJobTimeout(5*time.Minute))
	w.Handle(worker.SheetImportJob, worker.NewImporter(store, sheets, scorer).Handle)
	w.Handle(worker.CompanyProfileJob, worker.NewProfileExtractor(store, scorer, &http.Client{Timeout: 30 * time.Second}).Handle)
	w.Handle(followup.JobType, followups.Handle)
	go w.Run(ctx)

	health := map[string]api.HealthCheck{
		"storage": store.Ping,
		"generative": func(ctx context.Context) error {
			if !gen.IsRunning(ctx) {
				return fmt.Errorf("%s not reachable", gen.Provider())
			}
			return nil
		},
		"gmail":    nil,
		"sheets":   nil,
		"calendly": nil,
	}
	if box != nil {
		health["gmail"] = func(ctx context.Context) error {
			_, err := box.gmail.Ping(ctx)
			return err
		}
		health["sheets"] = func(context.Context) error {
			_, err := box.creds.Token()
			return err
		}
	}
	if cal.Configured() {
		health["calendly"] = func(ctx context.Context) error {
			_, err := cal.CurrentUser(ctx)
			return err
		}
	}

	handler := api.NewHandler(api.Deps{
		Store:      store,
		Profile:    profileMgr,
		Scorer:     scorer,
		Generator:  gen,
		Classifier: classifier,
		Campaigns:  orch,
		Scheduling: cal,
		Health:     health,
		Token:      apiToken,
		OwnerID:    defaultOwnerID,
		MaxResults: cfg.Automation.MaxQueryResults,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: handler}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:      store,
		Profile:    profileMgr,
		Scorer:     scorer,
		Generator:  gen,
		Classifier: classifier,
		Campaigns:  orch,
		Version:    version,
	})
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	mcpHTTP := &http.Server{
		Addr:    mcpAddr,
		Handler: api.BearerAuth(apiToken)(server.NewStreamableHTTPServer(mcpSrv)),
	}
	if mcpStdio {
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 2)
	go func() {
		fmt.Fprintf(os.Stderr, "outreach listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("mcp: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mcpHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Warn("stopping MCP server", "error", err)
	}
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
		printError("outreach is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop outreach (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to outreach (PID %d)", pid)
	return nil
}

type healthReport struct {
	Status       string `json:"status"`
	Integrations map[string]struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	} `json:"integrations"`
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	var report healthReport
	decodeErr := json.NewDecoder(resp.Body).Decode(&report)
	resp.Body.Close()
	if decodeErr != nil {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}

	printStatus("Server", "%s on port %d", report.Status, cfg.Server.Port)
	for _, name := range []string{"storage", "generative", "gmail", "sheets", "calendly"} {
		in, ok := report.Integrations[name]
		if !ok {
			continue
		}
		switch in.Status {
		case "ok":
			printStatus(name, "%s", colorize(colorGreen, in.Status))
		case "error":
			printStatus(name, "%s (%s)", colorize(colorRed, in.Status), in.Error)
		default:
			printStatus(name, "%s", in.Status)
		}
	}

	var usage generation.Usage
	if resp, err := client.get(ctx, "/admin/quota"); err == nil {
		if decodeJSON(resp, &usage) == nil {
			printStatus("Generation quota", "%d/%d calls today", usage.CallsToday, usage.DailyCap)
		}
	}

	var jobs []lead.CampaignJob
	if resp, err := client.get(ctx, "/jobs"); err == nil {
		if decodeJSON(resp, &jobs) == nil {
			active := 0
			for _, j := range jobs {
				if !j.Status.Terminal() {
					active++
				}
			}
			printStatus("Campaign jobs", "%d active, %d total", active, len(jobs))
		}
	}

	printStatus("Provider", "%s", cfg.Engine.Provider)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
