package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"crm-notification-service/internal/config"
	"crm-notification-service/internal/grouping"
	httphandler "crm-notification-service/internal/handler/http"
	wshandler "crm-notification-service/internal/handler/ws"
	"crm-notification-service/internal/orchestrator"
	"crm-notification-service/internal/preference"
	"crm-notification-service/internal/repository"
	"crm-notification-service/internal/router"
	"crm-notification-service/internal/usecase"
	"crm-notification-service/pkg/notifier"
	"crm-notification-service/pkg/notifier/email"
	"crm-notification-service/pkg/notifier/push"
	"crm-notification-service/pkg/notifier/ws"
	"crm-notification-service/pkg/template"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// NewServer wires the engine and returns the HTTP server plus the background
// email worker's cancel func.
func NewServer(cfg config.AppConfig) (*http.Server, context.CancelFunc) {
	// --- DB connection ---
	dbpool, err := pgxpool.New(context.Background(), cfg.DBURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// --- Repositories ---
	notifRepo := repository.NewNotificationRepository(dbpool)
	prefRepo := repository.NewPreferenceRepository(dbpool)
	pushRepo := repository.NewPushSubscriptionRepository(dbpool)
	userDir := repository.NewUserDirectory(dbpool)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	// --- WS manager and handler ---
	wsManager := ws.NewManager()
	go wsManager.Heartbeat(30 * time.Second)
	wsHandler := wshandler.NewWSHandler(wsManager)

	// --- Channel adapters ---
	pushSender := push.NewSender(pushRepo, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	emailQueue := email.NewQueue(rdb, cfg.EmailQueueKey)

	tmplService := template.NewService(cfg.EmailTemplates)
	smtpSender := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	emailWorker := email.NewWorker(rdb, cfg.EmailQueueKey, smtpSender, tmplService, userDir)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	go emailWorker.Run(workerCtx)

	// --- Core engine ---
	dispatcher := notifier.NewNotifier(wsManager, pushSender, emailQueue)
	resolver := preference.NewResolver(prefRepo, rdb)
	groups := grouping.NewEngine(notifRepo)
	orch := orchestrator.New(notifRepo, resolver, groups, dispatcher, cfg.NotifyTimeout)

	// --- Usecase + handlers ---
	uc := usecase.NewNotificationUsecase(notifRepo, prefRepo, pushRepo, resolver)
	restHandler := httphandler.NewNotificationHandler(uc, orch)

	// --- HTTP routes ---
	r := chi.NewRouter()
	r = router.SetupRoutes(r, restHandler, wsHandler, cfg.JWTSecret, rdb).(*chi.Mux)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}, stopWorker
}
