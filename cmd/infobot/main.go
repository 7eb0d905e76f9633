package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"infobot/internal/ai"
	"infobot/internal/bot"
	eventbus "infobot/internal/bus"
	"infobot/internal/config"
	"infobot/internal/domain"
	"infobot/internal/handler"
	"infobot/internal/metrics"
	"infobot/internal/store"
	"infobot/internal/wechat"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "infobot",
		Short:   "InfoBot: WeChat class-notice relay",
		Long:    "InfoBot watches WeChat for teacher messages, acknowledges them, and forwards class notices to the configured students.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.infobot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(broadcastCmd())
	root.AddCommand(configCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

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
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			// The default config is not valid on purpose: the operator
			// must fill in their own contacts before the bot starts.
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("config written, add your teachers and students", "path", cfgPath)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start watching and relaying messages",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		// Config problems are fatal at startup: never run half-configured.
		return err
	}

	logger = newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := eventbus.New(100, logger)
	defer messageBus.Close()

	journal, err := store.NewSQLiteJournal(cfg.Journal.DBPath, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	automator, err := buildAutomator(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := automator.(io.Closer); ok {
		defer closer.Close()
	}

	controller := wechat.NewController(automator, logger)
	planner := newPlanner(cfg)

	var enricher domain.Enricher
	if cfg.SiliconFlow.Enabled {
		enricher = newEnricher(cfg)
	}

	// The monitor sweeps teacher and student windows; anything it
	// cannot attribute never reaches it, so the push path is the only
	// source of unknown senders.
	monitor := wechat.NewMonitor(wechat.MonitorConfig{
		Automator: automator,
		Bus:       messageBus,
		Contacts:  append(cfg.TeacherContacts(), cfg.StudentContacts()...),
		Interval:  time.Duration(cfg.General.PollIntervalSeconds) * time.Second,
		Logger:    logger,
	})

	b := bot.New(bot.Config{
		Settings:   cfg,
		Logger:     logger,
		Bus:        messageBus,
		Events:     eventbus.NewEventBus(logger),
		Journal:    journal,
		Planner:    planner,
		Controller: controller,
		Enricher:   enricher,
		Monitor:    monitor,
		Collector:  metrics.NewCollector(),
	})
	return b.Run(ctx)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and journal state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true,
				"teachers", len(cfg.Teachers), "students", len(cfg.Students),
				"automator", cfg.General.Automator)

			journal, err := store.NewSQLiteJournal(cfg.Journal.DBPath, logger)
			if err != nil {
				logger.Warn("journal", "open", false, "err", err)
				return nil
			}
			defer journal.Close()

			ctx := cmd.Context()
			pending, _ := journal.PendingCount(ctx)
			teacher24h, _ := journal.TeacherCount(ctx, time.Now().Add(-24*time.Hour))
			logger.Info("journal", "pending", pending, "teacher_messages_24h", teacher24h)

			if cfg.SiliconFlow.Enabled {
				checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				if err := newEnricher(cfg).Healthy(checkCtx); err != nil {
					logger.Warn("enrichment", "healthy", false, "err", err)
				} else {
					logger.Info("enrichment", "healthy", true)
				}
			}
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [contact] [message]",
		Short: "Send one message to a configured contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			target := cfg.Resolve(args[0])
			if target.Role == domain.RoleUnknown {
				return fmt.Errorf("contact %q is not configured", args[0])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			automator, err := buildAutomator(ctx, cfg)
			if err != nil {
				return err
			}
			if closer, ok := automator.(io.Closer); ok {
				defer closer.Close()
			}

			controller := wechat.NewController(automator, logger)
			if err := controller.Execute(ctx, domain.Action{
				Kind: domain.ActionForward, Target: target, Payload: args[1],
			}); err != nil {
				return err
			}
			logger.Info("message sent", "to", target.DisplayName)
			return nil
		},
	}
}

func broadcastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast [message]",
		Short: "Send a message to every configured student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			automator, err := buildAutomator(ctx, cfg)
			if err != nil {
				return err
			}
			if closer, ok := automator.(io.Closer); ok {
				defer closer.Close()
			}

			controller := wechat.NewController(automator, logger)
			results := controller.SendToMany(ctx, cfg.StudentContacts(), args[0])

			delivered := 0
			for _, ok := range results {
				if ok {
					delivered++
				}
			}
			logger.Info("broadcast finished", "delivered", delivered, "total", len(results))
			if delivered < len(results) {
				return fmt.Errorf("%d of %d deliveries failed", len(results)-delivered, len(results))
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			// Never print credentials.
			cfg.SiliconFlow.APIKey = mask(cfg.SiliconFlow.APIKey)
			return config.Save("/dev/stdout", cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(resolveConfigPath())
			return nil
		},
	})
	return cmd
}

// buildAutomator constructs the configured chat-client backend. The
// openwechat backend logs in here so every command fails fast when the
// session cannot be established.
func buildAutomator(ctx context.Context, cfg *config.Config) (domain.Automator, error) {
	switch cfg.General.Automator {
	case "openwechat":
		client := wechat.NewWebClient(storagePath(), logger)
		if err := client.Login(ctx); err != nil {
			return nil, err
		}
		return client, nil
	default:
		return wechat.NewOsaScript(logger), nil
	}
}

func storagePath() string {
	return config.ExpandPath("~/.infobot/wechat-session.json")
}

func newPlanner(cfg *config.Config) *handler.Planner {
	return handler.New(handler.Options{
		AckText:  cfg.General.AckText,
		Students: cfg.StudentContacts(),
		Template: cfg.Forward.Template,
		Filter: handler.FilterOptions{
			MinLength:   cfg.Forward.MinMessageLength,
			Blacklist:   cfg.Forward.BlacklistKeywords,
			Important:   cfg.Forward.ImportantKeywords,
			Unimportant: cfg.Forward.UnimportantKeywords,
		},
	})
}

func newEnricher(cfg *config.Config) *ai.SiliconFlow {
	return ai.NewSiliconFlow(ai.Config{
		APIKey:      cfg.SiliconFlow.APIKey,
		APIBase:     cfg.SiliconFlow.APIBase,
		Model:       cfg.SiliconFlow.Model,
		MaxTokens:   cfg.SiliconFlow.MaxTokens,
		Temperature: cfg.SiliconFlow.Temperature,
		Timeout:     time.Duration(cfg.SiliconFlow.TimeoutSeconds) * time.Second,
		Logger:      logger,
	})
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := io.Writer(os.Stderr)
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			out = io.MultiWriter(os.Stderr, f)
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func mask(s string) string {
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}
