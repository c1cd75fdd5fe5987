package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mastrogpt/internal/bus"
	"mastrogpt/internal/config"
	"mastrogpt/internal/display"
	"mastrogpt/internal/invoker"
	"mastrogpt/internal/logging"
	"mastrogpt/internal/seed"
	"mastrogpt/internal/selector"
	"mastrogpt/internal/surface"
)

type flags struct {
	config    string
	base      string
	namespace string
	logFile   string
	logLevel  string
}

func main() {
	var f flags
	root := &cobra.Command{
		Use:           "mastrogpt-chat",
		Short:         "Terminal chat client for MastroGPT web actions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	root.Flags().StringVar(&f.config, "config", "", "client config file (default .mastrogpt.toml)")
	root.Flags().StringVar(&f.base, "base", "", "action host base URL")
	root.Flags().StringVar(&f.namespace, "namespace", "", "namespace to discover services in")
	root.Flags().StringVar(&f.logFile, "log-file", "", "write logs to this file")
	root.Flags().StringVar(&f.logLevel, "log-level", "", "log level")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("mastrogpt-chat: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.LoadClientConfig(f.config)
	if err != nil {
		return err
	}
	if f.base != "" {
		cfg.BaseURL = config.NormalizeBase(f.base)
	}
	if f.namespace != "" {
		cfg.Namespace = f.namespace
	}
	if f.logFile != "" {
		cfg.LogFile = f.logFile
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	closer, err := logging.SetupFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return errors.Wrap(err, "opening log file")
	}
	defer closer.Close()

	b, err := bus.New(bus.Settings{
		RedisEnabled: cfg.Redis.Enabled,
		RedisAddr:    cfg.Redis.Addr,
		Group:        cfg.Redis.Group,
		Consumer:     cfg.Redis.Consumer,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	panel := display.NewPanel()
	relay := display.NewRelay(cfg.BaseURL, cfg.Namespace, panel, display.WithSandbox(display.NewSandbox(2*time.Second)))
	if err := relay.Listen(ctx, b.Subscriber); err != nil {
		return err
	}

	chat := surface.New(invoker.WithSink(invoker.BusSink(b.Publisher)))
	defer chat.Close()
	if err := chat.Listen(ctx, b.Subscriber); err != nil {
		return err
	}

	sel := selector.New(cfg.BaseURL, cfg.Namespace, nil, b.Publisher)
	m := newModel(ctx, chat, panel, sel)
	m.WithSeeder(seed.NewCalendar(cfg.BaseURL, m.PromptCode, b.Publisher))

	log.Info().Str("component", "chat").Str("base", cfg.BaseURL).Str("namespace", cfg.Namespace).Msg("starting chat client")
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
