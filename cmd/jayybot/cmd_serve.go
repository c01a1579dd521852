package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/madakixo/jayy-bot/internal/bridge"
	"github.com/madakixo/jayy-bot/internal/directory"
	"github.com/madakixo/jayy-bot/internal/drive"
	"github.com/madakixo/jayy-bot/internal/engine"
	"github.com/madakixo/jayy-bot/internal/geocode"
	"github.com/madakixo/jayy-bot/internal/paystack"
	"github.com/madakixo/jayy-bot/internal/scheduler"
	"github.com/madakixo/jayy-bot/internal/store"
	"github.com/madakixo/jayy-bot/internal/telegram"
	"github.com/madakixo/jayy-bot/internal/types"
	"github.com/madakixo/jayy-bot/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the jayybot daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "jayybot.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	// Misconfiguration is fatal here, never at request time.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	cipher, err := store.NewCipher(cfg.EncryptionKey())
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	st, err := store.NewSQLite(filepath.Join(cfg.DataDir, "jayybot.db"), cipher, store.Options{
		QuotaMax:         cfg.Quota.MaxAccess,
		Cooldown:         time.Duration(cfg.Quota.CooldownMinutes) * time.Minute,
		PendingUnlockTTL: time.Duration(cfg.Sessions.PendingUnlockTTLHours) * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	dir := directory.New(time.Duration(cfg.Sessions.IdleTTLMinutes) * time.Minute)

	// Adapters
	gateway := paystack.New(cfg.Paystack.SecretKey, cfg.Paystack.BaseURL, cfg.Paystack.CallbackURL)
	catalog := drive.New(cfg.Drive.APIKey, cfg.Drive.Folders)
	regions := make([]string, 0, len(cfg.Drive.Folders))
	for region := range cfg.Drive.Folders {
		regions = append(regions, region)
	}
	geocoder := geocode.New(regions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The engine and the telegram adapter reference each other: the adapter
	// feeds events in, the engine sends responses back out through it.
	var eng *engine.Engine
	adapter, err := telegram.New(cfg.Telegram.Token, handlerFunc(func(ctx context.Context, ev types.InboundEvent) error {
		return eng.HandleEvent(ctx, ev)
	}))
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	eng = engine.New(st, dir, gateway, catalog, geocoder, adapter, engine.Options{
		AdminID:         types.RequesterID(cfg.Security.AdminID),
		AmountKobo:      cfg.Pricing.AmountKobo,
		QuotaMax:        cfg.Quota.MaxAccess,
		CooldownMinutes: cfg.Quota.CooldownMinutes,
		MaxConcurrent:   int64(cfg.MaxConcurrent),
	})

	br := bridge.New(st, dir, gateway, adapter)

	go adapter.Start(ctx)
	slog.Info("telegram adapter started")

	sched := scheduler.New(dir, st, br)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if cfg.HTTP.Enabled {
		webhookSrv := webhook.NewServer(cfg.Paystack.SecretKey, br)
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: webhookSrv,
		}
		go func() {
			slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("webhook server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	slog.Info("jayybot started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"regions", len(cfg.Drive.Folders),
		"quota_max", cfg.Quota.MaxAccess,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	return nil
}

// handlerFunc adapts a function to the telegram.EventHandler interface.
type handlerFunc func(ctx context.Context, ev types.InboundEvent) error

func (f handlerFunc) HandleEvent(ctx context.Context, ev types.InboundEvent) error {
	return f(ctx, ev)
}
