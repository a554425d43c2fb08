package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"marketplace-core/internal/audit"
	"marketplace-core/internal/auth"
	commissionrepo "marketplace-core/internal/commission/infrastructure/postgres"
	"marketplace-core/internal/eventing"
	eventingrepo "marketplace-core/internal/eventing/infrastructure/postgres"
	"marketplace-core/internal/observability/metrics"
	paymentapp "marketplace-core/internal/payment/application"
	paymentrepo "marketplace-core/internal/payment/infrastructure/postgres"
	paymentinterfaces "marketplace-core/internal/payment/interfaces"
	settlementapp "marketplace-core/internal/settlement/application"
	settlement "marketplace-core/internal/settlement/domain"
	settlementrepo "marketplace-core/internal/settlement/infrastructure/postgres"
	settlementredis "marketplace-core/internal/settlement/infrastructure/redis"
	settlementinterfaces "marketplace-core/internal/settlement/interfaces"
	"marketplace-core/internal/settlement/notify"
	"marketplace-core/pkg/logging"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := loadConfig()
	logger := logging.NewStdLogger(logging.Setup())

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	baseBus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(paymentapp.StatusChanged{})
	registry.Register(settlementapp.SettlementCreated{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, cfg.TenantID, baseBus)

	paymentRepo := paymentrepo.NewPaymentRepository(db)
	paymentPublisher := paymentinterfaces.NewOutboxPublisher(publisher, cfg.TenantID)
	paymentService, err := paymentapp.NewService(paymentRepo, paymentPublisher, paymentapp.SystemClock{}, logger)
	if err != nil {
		logger.Fatalf("payment service error: %v", err)
	}

	eventing.Subscribe(baseBus, eventing.EventTypeOf[paymentapp.StatusChanged](), "payments.log", func(ctx context.Context, event any) error {
		evt, ok := event.(paymentapp.StatusChanged)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("payment status changed: payment=%s order=%s %s -> %s", evt.PaymentID, evt.OrderID, evt.From, evt.To)
		return nil
	}, processedStore)

	schedCfg, err := settlementapp.LoadSchedulerConfig()
	if err != nil {
		logger.Fatalf("settlement config error: %v", err)
	}

	policyResolver := commissionrepo.NewPolicyResolver(db)
	calculator, err := settlementapp.NewCalculator(policyResolver, logger)
	if err != nil {
		logger.Fatalf("settlement calculator error: %v", err)
	}
	settlementRepo := settlementrepo.NewSettlementRepository(db)
	aggregator, err := settlementapp.NewAggregator(settlementRepo, settlementapp.SystemClock{}, logger)
	if err != nil {
		logger.Fatalf("settlement aggregator error: %v", err)
	}

	var runLock settlement.RunLock
	if cfg.RedisAddr != "" {
		runLock = settlementredis.NewRunLock(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		runLock = settlementrepo.NewRunLock(db)
	}

	paidItemReader := settlementrepo.NewPaidItemReader(db)
	settlementPublisher := settlementinterfaces.NewOutboxPublisher(publisher, cfg.TenantID)
	engine, err := settlementapp.NewEngine(
		paidItemReader, calculator, aggregator, settlementRepo,
		runLock, schedCfg.LockTTL(), settlementPublisher, settlementapp.SystemClock{}, logger)
	if err != nil {
		logger.Fatalf("settlement engine error: %v", err)
	}

	eventing.Subscribe(baseBus, eventing.EventTypeOf[settlementapp.SettlementCreated](), "settlements.log", func(ctx context.Context, event any) error {
		evt, ok := event.(settlementapp.SettlementCreated)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("settlement created: settlement=%s recipient=%s/%s net=%d %s",
			evt.SettlementID, evt.RecipientType, evt.RecipientID, evt.TotalNet, evt.Currency)
		return nil
	}, processedStore)

	var alertNotifier notify.AlertNotifier
	if schedCfg.WebhookURL != "" {
		alertNotifier = notify.NewWebhookNotifier(schedCfg.WebhookURL)
	}
	scheduler := settlementapp.NewScheduler(engine, schedCfg, alertNotifier, logger)
	go scheduler.Start(context.Background())

	// Drain outbox records that an inline dispatch missed, e.g. after a crash
	// between insert and dispatch.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := dispatcher.Dispatch(context.Background(), 50); err != nil {
				logger.Printf("outbox dispatch error: %v", err)
			}
		}
	}()

	settlementHandler, err := settlementinterfaces.NewSettlementHandler(engine, auditRepo)
	if err != nil {
		logger.Fatalf("settlement handler error: %v", err)
	}
	createPayment := paymentinterfaces.NewCreatePaymentHandler(paymentService)
	getPayment := paymentinterfaces.NewGetPaymentHandler(paymentService)
	webhookHandler := paymentinterfaces.NewPaymentWebhookHandler(paymentService)
	actionHandler := paymentinterfaces.NewPaymentActionHandler(paymentService)

	policy := auth.NewDefaultPolicy([]string{"/api/v1/payments/webhook", "/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/payments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			getPayment.ServeHTTP(w, r)
			return
		}
		createPayment.ServeHTTP(w, r)
	})
	mux.Handle("/api/v1/payments/webhook", webhookHandler)
	mux.Handle("/api/v1/payments/action", actionHandler)
	mux.Handle("/api/v1/settlements", settlementHandler)
	mux.Handle("/api/v1/settlements/", settlementHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	TenantID    string
	JWTSecret   string
	RedisAddr   string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:    getenvDefault("TENANT_ID", "tenant-demo"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
