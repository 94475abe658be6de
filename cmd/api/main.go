package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/Abdualsslam/tras-phone-sub000/internal/api/http"
	"github.com/Abdualsslam/tras-phone-sub000/internal/api/http/handlers"
	"github.com/Abdualsslam/tras-phone-sub000/internal/audit"
	"github.com/Abdualsslam/tras-phone-sub000/internal/auth"
	"github.com/Abdualsslam/tras-phone-sub000/internal/config"
	"github.com/Abdualsslam/tras-phone-sub000/internal/events"
	"github.com/Abdualsslam/tras-phone-sub000/internal/monitor"
	"github.com/Abdualsslam/tras-phone-sub000/internal/notify"
	"github.com/Abdualsslam/tras-phone-sub000/internal/observability"
	"github.com/Abdualsslam/tras-phone-sub000/internal/persistence"
	"github.com/Abdualsslam/tras-phone-sub000/internal/realtime"
	"github.com/Abdualsslam/tras-phone-sub000/internal/reports"
	"github.com/Abdualsslam/tras-phone-sub000/internal/repository"
	"github.com/Abdualsslam/tras-phone-sub000/internal/service"
	"github.com/Abdualsslam/tras-phone-sub000/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	ticketMessageRepo := repository.NewTicketMessageRepository(pool)
	chatSessionRepo := repository.NewChatSessionRepository(pool)
	chatMessageRepo := repository.NewChatMessageRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	sequenceRepo := repository.NewSequenceRepository(pool)
	botRuleRepo := repository.NewBotRuleRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	auditor := audit.NewLogRecorder(logger)
	notifierWorker := worker.NewNotificationWorker(notify.NewLogNotifier(logger, cfg.Notification), logger, 256, 2)
	defer notifierWorker.Stop()

	tokenManager := auth.NewTokenManager(cfg.Auth)
	authMiddleware := auth.NewAuthMiddleware(tokenManager, agentRepo)

	botMatcher := service.NewBotMatcher(botRuleRepo, logger)
	messageService := service.NewMessageService(service.MessageDependencies{
		TicketRepo:        ticketRepo,
		TicketMessageRepo: ticketMessageRepo,
		SessionRepo:       chatSessionRepo,
		ChatMessageRepo:   chatMessageRepo,
		BotMatcher:        botMatcher,
		Dispatcher:        dispatcher,
		Auditor:           auditor,
		Notifier:          notifierWorker,
		Logger:            logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		MessageRepo:  ticketMessageRepo,
		CategoryRepo: categoryRepo,
		SequenceRepo: sequenceRepo,
		Engine:       messageService,
		Dispatcher:   dispatcher,
		Auditor:      auditor,
		Notifier:     notifierWorker,
		Logger:       logger,
	})
	chatService := service.NewChatService(service.ChatDependencies{
		SessionRepo:  chatSessionRepo,
		MessageRepo:  chatMessageRepo,
		SequenceRepo: sequenceRepo,
		Engine:       messageService,
		Dispatcher:   dispatcher,
		Auditor:      auditor,
		Notifier:     notifierWorker,
		Logger:       logger,
		Welcome:      cfg.Chat.WelcomeMessage,
	})
	authService := service.NewAuthService(agentRepo, tokenManager, logger)
	reportService := reports.NewService(pool)

	hub := realtime.NewHub(logger)
	realtime.NewBridge(hub, logger).RegisterHandlers(dispatcher)
	gateway := realtime.NewGateway(hub, tokenManager, dispatcher, logger)

	slaMonitor := monitor.NewSLAMonitor(ticketRepo, redis, notifierWorker, metrics, dispatcher, logger, cfg.SLA)
	sweeper := monitor.NewAbandonSweeper(chatService, logger, cfg.Chat)

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		slaMonitor.Run(ctx)
	}()
	go func() {
		defer background.Done()
		sweeper.Run(ctx)
	}()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, messageService),
		Chat:           handlers.NewChatHandler(chatService, messageService),
		Reports:        handlers.NewReportsHandler(reportService),
		Gateway:        gateway,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
	// An in-flight scan may still be sending notifications; join the
	// background loops before the deferred worker Stop drains the queue.
	background.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
