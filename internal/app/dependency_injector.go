package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/you-humble/detectify/internal/classifier"
	"github.com/you-humble/detectify/internal/enrichment"
	"github.com/you-humble/detectify/internal/extractor"
	"github.com/you-humble/detectify/internal/infra/broker"
	"github.com/you-humble/detectify/internal/infra/config"
	filestore "github.com/you-humble/detectify/internal/infra/store/file"
	reportstore "github.com/you-humble/detectify/internal/infra/store/report"
	taskstore "github.com/you-humble/detectify/internal/infra/store/task"
	"github.com/you-humble/detectify/internal/libs/mio"
	"github.com/you-humble/detectify/internal/libs/natsq"
	"github.com/you-humble/detectify/internal/libs/rediscli"
	"github.com/you-humble/detectify/internal/pipeline"
	"github.com/you-humble/detectify/internal/transport"
	"github.com/you-humble/detectify/internal/usecase"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type FileStore interface {
	usecase.FileStore
	pipeline.FileStore
}

type TaskStore interface {
	usecase.TaskStore
	pipeline.TaskStore
}

type MessageBroker interface {
	Publish(ctx context.Context, subject string, v any) error
	Subscribe(ctx context.Context, subject string, size int, handler broker.Handler) error
	Stop(ctx context.Context)
}

// dependencyInjector builds every service object exactly once and hands
// it to whoever asks. No ambient globals: stage handlers receive their
// collaborators by reference.
type dependencyInjector struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger

	redis       *redis.Client
	taskStore   TaskStore
	reportCache pipeline.ReportCache
	fileStore   FileStore

	natsConn *nats.Conn
	js       nats.JetStreamContext
	broker   MessageBroker

	enricher *enrichment.Client
	adapter  *classifier.Adapter
	pipeline *pipeline.Pipeline

	usecase transport.Usecase
	handler transport.Handler
	router  Router
}

func newDI(cfgPath string) *dependencyInjector {
	return &dependencyInjector{cfgPath: cfgPath}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(di.cfgPath)
	}
	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("redis client: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) TaskStore(ctx context.Context) TaskStore {
	if di.taskStore == nil {
		di.taskStore = taskstore.NewRedisTaskStore(di.RedisClient(ctx))
	}
	return di.taskStore
}

func (di *dependencyInjector) ReportCache(ctx context.Context) pipeline.ReportCache {
	if di.reportCache == nil {
		di.reportCache = reportstore.NewRedisReportCache(di.RedisClient(ctx))
	}
	return di.reportCache
}

func (di *dependencyInjector) FileStore(ctx context.Context) FileStore {
	if di.fileStore == nil {
		cfg := di.Config()

		if cfg.MinIO.Enabled {
			remote, err := filestore.NewMinIOStore(ctx, mio.Config{
				Endpoint:        cfg.MinIO.Endpoint,
				AccessKeyID:     cfg.MinIO.AccessKeyID,
				SecretAccessKey: cfg.MinIO.SecretAccessKey,
				UseSSL:          cfg.MinIO.UseSSL,
				Bucket:          cfg.MinIO.Bucket,
			})
			if err != nil {
				log.Fatalf("FileStore minio: %+v", err)
			}
			di.Logger().Info("initialized MinIO file store",
				slog.String("endpoint", cfg.MinIO.Endpoint),
				slog.String("bucket", cfg.MinIO.Bucket),
			)
			di.fileStore = remote
		} else {
			local, err := filestore.NewLocalStore(cfg.BaseDir)
			if err != nil {
				log.Fatalf("FileStore local: %+v", err)
			}
			di.Logger().Info("initialized local file store",
				slog.String("base_dir", cfg.BaseDir),
			)
			di.fileStore = local
		}
	}
	return di.fileStore
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config()
		nc, err := natsq.NewConnect(natsq.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config()
		topics := cfg.NATS.Topics
		js, err := natsq.NewJetStream(di.NATSConn(ctx), natsq.StreamConfig{
			Name: cfg.NATS.Stream,
			Subjects: []string{
				topics.Available,
				topics.Hash,
				topics.Report,
				topics.Classify,
				topics.Completed,
			},
			// Outlive the task TTL so redeliveries stay possible for the
			// whole life of a record.
			MaxAge: 2 * cfg.TaskTTL,
		})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}
		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Broker(ctx context.Context) MessageBroker {
	if di.broker == nil {
		di.broker = broker.New(di.JetStream(ctx), di.Config().NATS.Stream)
	}
	return di.broker
}

func (di *dependencyInjector) Enricher(ctx context.Context) *enrichment.Client {
	if di.enricher == nil {
		cfg := di.Config().Enrichment
		di.enricher = enrichment.NewClient(
			cfg.BaseURL,
			cfg.APIKey,
			&http.Client{Timeout: cfg.Timeout},
			rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
			di.FileStore(ctx),
		)
	}
	return di.enricher
}

func (di *dependencyInjector) Classifier(ctx context.Context) *classifier.Adapter {
	if di.adapter == nil {
		cfg := di.Config().Classifier
		model := classifier.NewHTTPModel(cfg.Endpoint, &http.Client{Timeout: cfg.Timeout})
		di.adapter = classifier.NewAdapter(model, cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return di.adapter
}

func (di *dependencyInjector) Pipeline(ctx context.Context) *pipeline.Pipeline {
	if di.pipeline == nil {
		topics := di.Config().NATS.Topics
		di.pipeline = pipeline.New(
			di.TaskStore(ctx),
			di.ReportCache(ctx),
			di.FileStore(ctx),
			di.Enricher(ctx),
			di.Classifier(ctx),
			extractCorpus,
			di.Broker(ctx),
			pipeline.Topics{
				Available: topics.Available,
				Hash:      topics.Hash,
				Report:    topics.Report,
				Classify:  topics.Classify,
				Completed: topics.Completed,
			},
		)
	}
	return di.pipeline
}

func (di *dependencyInjector) Usecase(ctx context.Context) transport.Usecase {
	if di.usecase == nil {
		cfg := di.Config()
		di.usecase = usecase.New(
			cfg.TaskTTL,
			di.TaskStore(ctx),
			di.FileStore(ctx),
			di.Broker(ctx),
			cfg.NATS.Topics.Available,
		)
	}
	return di.usecase
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		di.handler = transport.NewHandler(di.Config().MaxUploadBytesMb, di.Usecase(ctx))
	}
	return di.handler
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewRouter(di.Handler(ctx))
	}
	return di.router
}

func extractCorpus(report []byte) (string, error) {
	r, err := extractor.Parse(report)
	if err != nil {
		return "", err
	}
	return extractor.Corpus(r), nil
}
