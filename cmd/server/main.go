package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/app"
	"github.com/Freeeeeet/lesson_scheduler/internal/clock"
	"github.com/Freeeeeet/lesson_scheduler/internal/config"
	"github.com/Freeeeeet/lesson_scheduler/internal/controller"
	"github.com/Freeeeeet/lesson_scheduler/internal/controller/handlers"
	"github.com/Freeeeeet/lesson_scheduler/internal/controller/httpapi"
	"github.com/Freeeeeet/lesson_scheduler/internal/notify"
	"github.com/Freeeeeet/lesson_scheduler/internal/notify/sendgrid"
	"github.com/Freeeeeet/lesson_scheduler/internal/notify/telegram"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/base"
	"github.com/Freeeeeet/lesson_scheduler/internal/repository/inmem"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/Freeeeeet/lesson_scheduler/internal/video"
	"github.com/Freeeeeet/lesson_scheduler/internal/video/daily"
	"github.com/Freeeeeet/lesson_scheduler/internal/video/fake"
	"github.com/Freeeeeet/lesson_scheduler/migrations"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// storage репозитории выбранного хранилища
type storage struct {
	tx           service.Transactor
	users        service.UserStore
	availability service.AvailabilityRepository
	lessons      service.LessonRepository
	sessions     service.MeetingSessionRepository
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.AppName)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting lesson scheduler",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage),
		zap.String("video_provider", cfg.VideoProvider),
		zap.String("timezone", cfg.Location().String()),
	)

	clk := clock.NewReal(cfg.Location())

	store, err := newStorage(ctx, cfg, clk, logger)
	if err != nil {
		return err
	}
	defer store.close()

	provider := newVideoProvider(cfg, clk, logger)

	var tgBot *bot.Bot
	if cfg.TelegramToken != "" {
		tgBot, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
	}
	notifier := newNotifier(cfg, tgBot, logger)

	settings := service.DefaultSettings()
	settings.Location = cfg.Location()
	settings.MinBookingLead = cfg.MinBookingLead
	settings.RoomTTL = cfg.RoomTTL
	settings.EnableRecording = cfg.EnableRecording

	users := service.NewUserService(store.users, logger)
	booking := service.NewBookingService(store.tx, store.users, store.availability, store.lessons, notifier, clk, settings, logger)
	meetings := service.NewMeetingService(store.tx, store.users, store.lessons, store.sessions, provider, notifier, clk, settings, logger)

	svc := httpapi.Services{
		Users:        users,
		Availability: service.NewAvailabilityService(store.tx, store.users, store.availability, logger),
		Slots:        service.NewSlotService(store.users, store.availability, store.lessons, clk, settings, logger),
		Booking:      booking,
		Lessons:      service.NewLessonService(store.tx, store.lessons, store.sessions, provider, clk, settings, logger),
		Meetings:     meetings,
		Webhooks:     service.NewWebhookService(store.lessons, store.sessions, clk, logger),
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		AppName:       cfg.AppName,
		JWTSecret:     cfg.JWTSecret,
		WebhookSecret: cfg.WebhookSecret,
		RateLimit:     cfg.RateLimit,
		Location:      cfg.Location(),
		Clock:         clk,
	}, svc, logger)

	scheduler := app.NewScheduler(meetings, cfg.OrphanSweepInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if tgBot != nil {
		botController := controller.NewBotController(
			tgBot,
			handlers.NewHandlers(users, booking, clk, cfg.Location(), logger),
			logger,
		)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot commands menu was not set", zap.Error(err))
		}
		go botController.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- server.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	<-errCh

	logger.Info("✅ Server stopped")
	return nil
}

func newStorage(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		store := inmem.NewStore(clk.Now)
		return &storage{
			tx:           inmem.NewTransactor(store),
			users:        inmem.NewUserRepository(store),
			availability: inmem.NewAvailabilityRepository(store),
			lessons:      inmem.NewLessonRepository(store),
			sessions:     inmem.NewMeetingSessionRepository(store),
			close:        func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	logger.Info("✅ Connected to database")

	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := migrator.Run(ctx); err != nil {
		migrator.Close()
		pool.Close()
		return nil, err
	}
	migrator.Close()

	return &storage{
		tx:           base.NewTransactor(pool),
		users:        repository.NewUserRepository(pool),
		availability: repository.NewAvailabilityRepository(pool),
		lessons:      repository.NewLessonRepository(pool),
		sessions:     repository.NewMeetingSessionRepository(pool),
		close:        pool.Close,
	}, nil
}

func newVideoProvider(cfg *config.Config, clk clock.Clock, logger *zap.Logger) video.Provider {
	var provider video.Provider
	switch cfg.VideoProvider {
	case config.VideoDaily:
		provider = daily.NewClient(cfg.DailyAPIURL, cfg.DailyAPIKey)
	default:
		logger.Warn("Using fake video provider")
		provider = fake.New("http://localhost"+cfg.HTTPAddr+"/fake-video", clk.Now)
	}

	return video.NewGuard(provider, video.GuardConfig{
		Timeout:     cfg.VideoTimeout,
		ReadRetries: 3,
	}, logger)
}

// newNotifier собирает каналы уведомлений; лог пишется всегда
func newNotifier(cfg *config.Config, tgBot *bot.Bot, logger *zap.Logger) notify.Sender {
	senders := notify.Multi{notify.NewLog(logger)}

	if tgBot != nil {
		senders = append(senders, telegram.NewWithBot(tgBot, logger))
	}
	if cfg.SendgridAPIKey != "" {
		senders = append(senders, sendgrid.New(cfg.SendgridAPIKey, cfg.AppName, cfg.MailFrom, logger))
	}

	return senders
}
