package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"

	"github.com/tm2pc/txmanager/internal/actuator"
	"github.com/tm2pc/txmanager/internal/adminserver"
	"github.com/tm2pc/txmanager/internal/authz/casbin"
	"github.com/tm2pc/txmanager/internal/authz/jwt"
	"github.com/tm2pc/txmanager/internal/capacity"
	"github.com/tm2pc/txmanager/internal/eventlog"
	"github.com/tm2pc/txmanager/internal/snapshotstore"
	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/cache"
	"github.com/tm2pc/txmanager/pkg/config"
	"github.com/tm2pc/txmanager/pkg/database"
	"github.com/tm2pc/txmanager/pkg/events"
	"github.com/tm2pc/txmanager/pkg/logger"
	"github.com/tm2pc/txmanager/pkg/middleware/auth"
	"github.com/tm2pc/txmanager/pkg/resilience"
	"github.com/tm2pc/txmanager/pkg/telemetry"
)

var errInvalidAPIKey = errors.New("invalid reindex api key")

func main() {
	cfg, err := config.Load("tmd")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger)

	db, err := database.New(database.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Name:         cfg.Database.Name,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	snapStore := snapshotstore.NewGormStore(db)
	if err := snapStore.Migrate(); err != nil {
		log.Fatal("failed to migrate snapshot store", "error", err)
	}
	archiveIndex := snapshotstore.NewArchiveIndex(db.DB)
	if err := archiveIndex.Migrate(); err != nil {
		log.Fatal("failed to migrate archive index", "error", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis", "error", err)
	}
	orderCache := cache.NewRedisCache(redisClient, cache.DefaultOptions())

	var bus events.EventBus
	kafkaBus, err := events.NewKafkaEventBus(events.KafkaConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	})
	if err != nil {
		log.Fatal("failed to create event bus", "error", err)
	}
	bus = kafkaBus
	if err := eventlog.SubscribeMetrics(bus); err != nil {
		log.Warn("failed to subscribe metrics consumer", "error", err)
	}

	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Archive.Region)})
	if err != nil {
		log.Fatal("failed to create S3 session", "error", err)
	}
	archiver := snapshotstore.NewArchiver(s3.New(sess), cfg.Archive.S3Bucket).WithIndex(archiveIndex)

	jwtManager, err := jwt.NewManager(cfg.Auth)
	if err != nil {
		log.Fatal("failed to create jwt manager", "error", err)
	}

	enforcer, err := casbin.NewEnforcer(db.DB, cfg.Casbin.ModelPath, cfg.Casbin.PolicyPath, log)
	if err != nil {
		log.Fatal("failed to create casbin enforcer", "error", err)
	}

	breakers := resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig("tm2pc"))
	calleeRegistry := actuator.NewCalleeRegistry()
	act := actuator.New(calleeRegistry, breakers, nil, log)

	bridge := eventlog.NewBridge(bus, cfg.Kafka.Topic)
	cacheAdapter := adminserver.NewCacheAdapter(orderCache, "")

	tel, err := telemetry.New(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		JaegerURL:    cfg.Telemetry.JaegerURL,
		ServiceName:  cfg.Telemetry.ServiceName,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		log.Warn("failed to initialize telemetry, continuing without tracing", "error", err)
		tel = telemetry.NewNop()
	}
	tracerAdapter := adminserver.NewTracerAdapter(tel)

	tm := tm2pc.New(act, nil, nil,
		tm2pc.WithEvents(bridge),
		tm2pc.WithCache(cacheAdapter),
		tm2pc.WithTracer(tracerAdapter),
		tm2pc.WithLogger(log),
	)

	capSampler := capacity.NewSampler(cfg.Capacity, act, log)
	capCtx, capCancel := context.WithCancel(context.Background())
	go capSampler.Run(capCtx)

	snapshots := adminserver.NewSnapshotLoop(tm, snapStore, log)
	if err := snapshots.Restore(context.Background()); err != nil {
		log.Warn("failed to restore snapshot", "error", err)
	}
	snapCtx, snapCancel := context.WithCancel(context.Background())
	go snapshots.Run(snapCtx, 30*time.Second)

	if err := adminserver.ArchiveOnTerminal(bus, tm, archiver, log); err != nil {
		log.Warn("failed to subscribe order archiver", "error", err)
	}

	var reindexValidator auth.APIKeyValidator
	if cfg.Auth.ReindexAPIKey != "" {
		reindexValidator = auth.APIKeyValidatorFunc(func(ctx context.Context, rawKey string) (*auth.APIKeyInfo, error) {
			if rawKey != cfg.Auth.ReindexAPIKey {
				return nil, errInvalidAPIKey
			}
			return &auth.APIKeyInfo{ID: "reindex", Permissions: []string{"reindex:trigger"}}, nil
		})
	}

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{cfg.Search.ElasticsearchURL}})
	if err != nil {
		log.Fatal("failed to create elasticsearch client", "error", err)
	}
	indexer := eventlog.NewIndexer(esClient, log)

	gc := adminserver.NewGCScheduler(tm, log)

	srv := adminserver.NewServer(adminserver.Deps{
		TM:            tm,
		DB:            db,
		JWTManager:    jwtManager,
		Enforcer:      enforcer,
		ReindexAPIKey: reindexValidator,
		Indexer:       indexer,
		Logger:        log,
		Server:        cfg.Server,
		GC:            gc,
	})

	if err := adminserver.SubscribeTransitions(bus, srv.Hub()); err != nil {
		log.Warn("failed to subscribe websocket hub", "error", err)
	}

	if err := gc.Start(cfg.GC.Schedule); err != nil {
		log.Fatal("failed to start gc scheduler", "error", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("adminserver failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down tmd")
	capCancel()
	snapCancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("adminserver shutdown error", "error", err)
	}

	if data, err := tm.GetData(ctx); err == nil {
		if err := snapStore.Save(ctx, data); err != nil {
			log.Error("final snapshot save failed", "error", err)
		}
	}
	tm.Stop()

	if err := bus.Close(); err != nil {
		log.Error("event bus close error", "error", err)
	}

	log.Info("tmd exited")
}
