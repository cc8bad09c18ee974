package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"photodrop/internal/assistant"
	"photodrop/internal/bus"
	"photodrop/internal/config"
	"photodrop/internal/content"
	"photodrop/internal/metrics"
	"photodrop/internal/payment"
	"photodrop/internal/pix"
	"photodrop/internal/router"
	"photodrop/internal/session"
	"photodrop/internal/webhook"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "photodrop",
		Short:   "photodrop: WhatsApp photo bundle delivery",
		Long:    "photodrop delivers purchased photo bundles over WhatsApp, triggered by chat coupons or payment notifications.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.photodrop/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(pixCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			stateDir := config.ExpandPath(cfg.General.StateDir)
			if err := os.MkdirAll(stateDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "state_dir", stateDir)
			return nil
		},
	}
}

func pixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pix",
		Short: "Print a PIX copy-and-paste payload for the configured key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			enc := &pix.Encoder{
				Key:          cfg.Payment.PixKey,
				MerchantName: cfg.Payment.MerchantName,
				MerchantCity: cfg.Payment.MerchantCity,
			}
			fmt.Println(enc.Payload("***", nil))
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the delivery service (session + router + webhook)",
		Long:  "Starts the WhatsApp session, the message router and the payment webhook server. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// Secrets usually live in a .env next to the service; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.General.LogLevel)}))

	if err := os.MkdirAll(cfg.General.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	// Session: whatsmeow transport + history cache + manager.
	transport, err := session.NewWhatsmeowTransport(ctx, cfg.General.StateDir, logger.With("component", "transport"))
	if err != nil {
		return fmt.Errorf("whatsapp transport: %w", err)
	}

	history := session.NewHistory(cfg.Session.HistoryPath, cfg.Session.HistoryLimit, logger.With("component", "history"))
	history.Load()
	go history.Run(ctx, time.Duration(cfg.Session.FlushIntervalSeconds)*time.Second)

	manager := session.NewManager(session.ManagerConfig{
		Transport: transport,
		Bus:       messageBus,
		History:   history,
		Logger:    logger.With("component", "session"),
	})
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	// Content lookup against the photo bucket.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
	if err != nil {
		return fmt.Errorf("aws config: %w", err)
	}
	contentSvc := content.NewService(content.ServiceConfig{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: cfg.Storage.Bucket,
		Region: cfg.Storage.Region,
		Logger: logger.With("component", "content"),
	})

	encoder := &pix.Encoder{
		Key:          cfg.Payment.PixKey,
		MerchantName: cfg.Payment.MerchantName,
		MerchantCity: cfg.Payment.MerchantCity,
	}

	var fallback router.Assistant
	if cfg.Flow.FallbackMode == router.FallbackEchoLLM {
		fallback = assistant.NewOpenAI(assistant.OpenAIConfig{
			APIKey:  cfg.Assistant.APIKey,
			APIBase: cfg.Assistant.APIBase,
			Model:   cfg.Assistant.Model,
			Logger:  logger.With("component", "assistant"),
		})
	}

	msgRouter := router.New(messageBus, contentSvc, fallback, encoder, router.Config{
		IncludePaymentStep: cfg.Flow.IncludePaymentStep,
		FallbackMode:       cfg.Flow.FallbackMode,
		DemoMode:           cfg.Flow.DemoMode,
		PaymentLinkBase:    cfg.Flow.PaymentLinkBase,
	}, logger.With("component", "router"))
	go msgRouter.Run(ctx)

	go metrics.LogMemoryUsage(ctx, logger.With("component", "sysmon"), time.Minute)

	if cfg.Webhook.Enabled {
		payments := payment.NewClient(payment.ClientConfig{
			AccessToken: cfg.Payment.AccessToken,
			APIBase:     cfg.Payment.APIBase,
			Logger:      logger.With("component", "payment"),
		})
		srv := webhook.New(webhook.Config{
			Path:           cfg.Webhook.Path,
			Port:           cfg.Webhook.Port,
			Payments:       payments,
			Content:        contentSvc,
			Bus:            messageBus,
			Logger:         logger.With("component", "webhook"),
			MetricsEnabled: cfg.Metrics.Enabled,
			MetricsPath:    cfg.Metrics.Endpoint,
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("webhook server error", "err", err)
			}
		}()
	} else {
		logger.Info("webhook server disabled")
	}

	logger.Info("photodrop started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down...")

	if err := history.Flush(); err != nil {
		logger.Error("history flush on shutdown failed", "err", err)
	}
	transport.Disconnect()

	logger.Info("shutdown complete")
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
