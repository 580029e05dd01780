package bootstrap

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"mailroom_server/adapter/in/worker"
	"mailroom_server/adapter/out/locks"
	"mailroom_server/adapter/out/mailbox"
	"mailroom_server/adapter/out/mongodb"
	"mailroom_server/adapter/out/pdftext"
	"mailroom_server/adapter/out/persistence"
	"mailroom_server/adapter/out/semantic"
	"mailroom_server/config"
	in "mailroom_server/core/port/in"
	"mailroom_server/core/port/out"
	"mailroom_server/core/service/classification"
	"mailroom_server/core/service/extraction"
	"mailroom_server/core/service/ingestion"
	"mailroom_server/core/service/reconcile"
	"mailroom_server/infra/database"
	"mailroom_server/pkg/apperr"
	"mailroom_server/pkg/crypto"
	"mailroom_server/pkg/logger"
	"mailroom_server/pkg/metrics"
	"mailroom_server/pkg/snowflake"
)

// Dependencies is the wired object graph shared by the API and the
// scheduler. Postgres, Redis and the encryption key are mandatory;
// MongoDB and OpenAI degrade to absent capabilities.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	RecordRepo    out.EmailRecordRepository
	QuotationRepo out.QuotationRepository
	SupplierRepo  out.SupplierRepository
	ProposalRepo  out.ProposalRepository
	SettingsRepo  out.SettingsRepository

	// Outbound adapters
	AuditStore         out.AuditStore
	Locker             out.TenantLocker
	CounterCache       out.CounterCache
	Mailbox            out.MailboxProvider
	PDFExtractor       out.PDFTextExtractor
	SemanticClassifier out.SemanticClassifier
	SemanticExtractor  out.SemanticExtractor

	Encryptor *crypto.Encryptor
	IDs       *snowflake.Generator

	// Services
	Ingestion in.IngestionService
	Scheduler *worker.Scheduler
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	if cfg.DatabaseURL == "" {
		return nil, nil, apperr.ConfigError("DATABASE_URL is required")
	}
	if cfg.MailboxEncryptionKey == "" {
		return nil, nil, apperr.ConfigError("MAILBOX_ENCRYPTION_KEY is required")
	}

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the repository adapters)
	// simple_protocol avoids prepared statement conflicts behind PgBouncer
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, nil, apperr.DatabaseError("sqlx connect", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })
	metrics.RegisterPool("postgres", sqlDB.DB)

	// Redis (single-flight lock + caches). The lock is what keeps a
	// tenant's runs mutually exclusive, so Redis is not optional.
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })
	deps.Locker = locks.NewRedisLocker(redisClient)
	deps.CounterCache = locks.NewRedisCounterCache(redisClient)

	// MongoDB (raw body audit archive, best effort)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL, cfg.MongoDBName)
		if err != nil {
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			audit := mongodb.NewAuditAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := audit.EnsureIndexes(context.Background()); err != nil {
				logger.Warn("Failed to ensure MongoDB indexes: %v", err)
			}
			deps.AuditStore = audit
		}
	}

	// Repositories
	deps.RecordRepo = persistence.NewEmailRecordRepository(sqlDB)
	deps.QuotationRepo = persistence.NewQuotationRepository(sqlDB)
	deps.SupplierRepo = persistence.NewSupplierRepository(sqlDB)
	deps.ProposalRepo = persistence.NewProposalRepository(sqlDB)
	deps.SettingsRepo = persistence.NewSettingsRepository(sqlDB)

	// Mailbox secrets
	enc, err := crypto.NewEncryptor([]byte(cfg.MailboxEncryptionKey))
	if err != nil {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, nil, err
	}
	deps.Encryptor = enc

	// Record IDs
	ids, err := snowflake.NewGenerator(int64(cfg.SnowflakeShard))
	if err != nil {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, nil, err
	}
	deps.IDs = ids

	log := logger.Default()

	// PDF text extraction + IMAP provider
	deps.PDFExtractor = pdftext.NewExtractor(cfg.PdftotextPath, log)
	deps.Mailbox = mailbox.NewIMAPAdapter(deps.PDFExtractor, log)

	// Semantic capability (absent without an API key)
	llmClient := semantic.NewClient(semantic.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
	}, log)
	deps.SemanticClassifier = semantic.NewClassifierAdapter(llmClient)
	deps.SemanticExtractor = semantic.NewExtractorAdapter(llmClient)
	if llmClient == nil {
		logger.Warn("OPENAI_API_KEY not configured, semantic classification and extraction disabled")
	}

	// Pipeline services
	cascade := classification.NewCascade(deps.SemanticClassifier, log)
	extractor := extraction.NewExtractor(deps.SemanticExtractor, log)
	reconciler := reconcile.NewReconciler(deps.ProposalRepo, deps.QuotationRepo, cfg.ConfidenceFloor, log)

	deps.Ingestion = ingestion.NewService(ingestion.Deps{
		Records:    deps.RecordRepo,
		Quotations: deps.QuotationRepo,
		Suppliers:  deps.SupplierRepo,
		Proposals:  deps.ProposalRepo,
		Settings:   deps.SettingsRepo,
		Mailbox:    deps.Mailbox,
		Locker:     deps.Locker,
		Audit:      deps.AuditStore,
		Cache:      deps.CounterCache,
		Cascade:    cascade,
		Extractor:  extractor,
		Reconciler: reconciler,
		Encryptor:  enc,
		IDs:        ids,
		Logger:     log,
	}, ingestion.Options{
		LookbackDays:     cfg.LookbackDays,
		BodyExcerptRunes: cfg.BodyExcerptRunes,
		TenantLockTTL:    cfg.TenantLockTTL,
		OpenCountTTL:     cfg.OpenCountCacheTTL,
		MessageTimeout:   cfg.MessageTimeout,
		FetchTimeout:     cfg.MailboxFetchTimeout,
	})

	// Scheduler (started by the worker entrypoint, controllable over HTTP)
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "mailroom").Logger()
	deps.Scheduler = worker.NewScheduler(deps.Ingestion, deps.SettingsRepo, worker.SchedulerConfig{
		Interval:     cfg.SchedulerInterval,
		Workers:      cfg.SchedulerWorkers,
		LookbackDays: cfg.LookbackDays,
	}, zlog)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.DB.Ping(ctx); err != nil {
		return err
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
