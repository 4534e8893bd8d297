package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/bot"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/config"
	httpserver "github.com/Incredaimaso/AnimeNews-Bot/internal/infra/http"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/log"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/infra/metrics"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/usecase/publish"
	"github.com/Incredaimaso/AnimeNews-Bot/internal/usecase/schedule"
)

var (
	feedsFile string
	confirmed bool
)

var (
	rootCmd = &cobra.Command{
		Use:           "newsbot",
		Short:         "Публикация аниме-новостей из RSS в Telegram-канал",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Планировщик, админ-бот и HTTP сервер",
		RunE:  runService,
	}
	pollOnceCmd = &cobra.Command{
		Use:   "poll-once",
		Short: "Один цикл опроса лент и выход",
		RunE:  runPollOnce,
	}
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Удалить все отметки о публикациях",
		RunE:  runReset,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&feedsFile, "feeds", "", "YAML со списком лент (перекрывает FEEDS_FILE)")
	resetCmd.Flags().BoolVar(&confirmed, "yes", false, "подтвердить удаление")
	rootCmd.AddCommand(runCmd, pollOnceCmd, resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() config.AppConfig {
	cfg := config.Load()
	if feedsFile != "" {
		cfg.Pipeline.FeedsFile = feedsFile
	}
	return cfg
}

// signalContext отменяется по SIGTERM или SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func runService(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()
	logger := log.NewLogger(cfg.AppEnv)
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	scheduler := schedule.NewScheduler(cfg.Pipeline.PollInterval, func(ctx context.Context) {
		a.publisher.RunCycle(ctx, a.feeds)
	}, log.Component(logger, "schedule"))

	handler := bot.NewHandler(bot.Deps{
		Bot:     a.bot,
		Users:   a.store,
		Posts:   a.store,
		Trigger: scheduler,
		Preview: a.publisher,
		IsOwner: cfg.IsOwner,
		Status:  scheduler.Status,
		Sample:  publish.SampleEntry,
	}, log.Component(logger, "bot"))

	srv := httpserver.NewServer(log.Component(logger, "http"), scheduler, cfg.AdminToken)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := a.bot.GetUpdatesChan(u)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := scheduler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		handler.Listen(gctx, updates)
		return nil
	})
	g.Go(func() error {
		return srv.Start(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("остановка сервиса")
		a.bot.StopReceivingUpdates()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runPollOnce(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()
	logger := log.NewLogger(cfg.AppEnv)
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	stats := a.publisher.RunCycle(ctx, a.feeds)
	fmt.Printf("лент: %d (ошибок %d), записей: %d, опубликовано: %d, пропущено: %d, ошибок: %d\n",
		stats.Feeds, stats.FeedErrors, stats.Entries, stats.Sent, stats.Skipped, stats.Failed)
	return nil
}

func runReset(_ *cobra.Command, _ []string) error {
	if !confirmed {
		return errors.New("reset удаляет все отметки о публикациях, повторите с --yes")
	}
	cfg := loadConfig()
	logger := log.NewLogger(cfg.AppEnv)
	if cfg.PGDSN == "" {
		return errors.New("PG_DSN не задан")
	}
	ctx, stop := signalContext()
	defer stop()

	st, pool, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	removed, err := st.Reset(ctx)
	if err != nil {
		return fmt.Errorf("сброс: %w", err)
	}
	logger.Info().Int64("removed", removed).Msg("отметки о публикациях удалены")
	return nil
}
