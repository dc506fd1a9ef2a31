package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/account"
	"github.com/example/storefront/pkg/activity"
	"github.com/example/storefront/pkg/admin"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	kindHTTP = "http"
	kindGRPC = "grpc"
)

// stores is the set of backends selected by the storage section.
type stores struct {
	catalog  repository.CatalogStore
	users    repository.UserStore
	ledger   repository.OrderLedger
	settings repository.ConfigStore
	activity repository.ActivityLog
}

type App struct {
	config *config.Config
	logger *zap.Logger

	gateway   *gateway.Gateway
	grpc      *grpc.StorefrontService
	recorder  *activity.Recorder
	publisher events.Publisher
	discovery *discovery.ServiceDiscovery
	instances []*discovery.ServiceInstance

	closers []func(context.Context) error
}

// New opens every backend named in cfg and assembles the services. On error
// whatever was already opened is closed again.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{config: cfg, logger: logger}
	if err := a.build(); err != nil {
		if cerr := a.close(context.Background()); cerr != nil {
			logger.Warn("Failed to release backends", zap.Error(cerr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg, logger := a.config, a.logger

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}

	uploads, err := openUploads(cfg.Storage.UploadDir)
	if err != nil {
		return err
	}

	system := actor.NewActorSystem()
	recorder, err := activity.NewRecorder(system, st.activity, logger)
	if err != nil {
		return err
	}
	a.recorder = recorder
	a.closers = append(a.closers, func(context.Context) error { return recorder.Stop() })

	publisher, err := events.NewPublisher(cfg.NATS, logger.Named("events"))
	if err != nil {
		logger.Warn("Failed to connect to NATS, order events disabled", zap.Error(err))
		publisher = events.NoopPublisher{}
	}
	a.publisher = publisher

	m := metrics.New()
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	pipeline := order.NewPipeline(st.catalog, st.users, st.ledger, st.settings,
		order.WithLogger(logger),
		order.WithRecorder(recorder),
		order.WithPublisher(publisher),
		order.WithMetrics(m),
	)

	services := gateway.Services{
		Auth:     auth.NewService(st.users, tokens, cfg.Auth, recorder, logger),
		Accounts: account.NewService(st.users, recorder, logger),
		Admin: admin.NewService(admin.Stores{
			Catalog:  st.catalog,
			Users:    st.users,
			Ledger:   st.ledger,
			Settings: st.settings,
			Activity: st.activity,
		}, uploads, recorder, logger),
		Pipeline:    pipeline,
		Catalog:     st.catalog,
		Credentials: st.settings,
		Payments:    payment.NewClient(cfg.Payment),
		Metrics:     m,
		Uploads:     uploads,
	}

	a.gateway = gateway.NewGateway(cfg, services, logger.Named("gateway"))
	a.grpc = grpc.NewStorefrontService(cfg, pipeline, st.catalog, tokens, logger)

	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, logger)
		if err != nil {
			logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else {
			a.discovery = sd
		}
	}

	return nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	cfg := a.config
	var (
		files *repository.FileRepository
		mongo *repository.MongoRepository
	)

	fileRepo := func() (*repository.FileRepository, error) {
		if files != nil {
			return files, nil
		}
		r, err := repository.NewFileRepository(afero.NewOsFs(), cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Using file store", zap.String("dir", cfg.Storage.DataDir))
		files = r
		return r, nil
	}
	mongoRepo := func() (*repository.MongoRepository, error) {
		if mongo != nil {
			return mongo, nil
		}
		r, err := repository.NewMongoRepository(&cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		if err := r.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		if err := r.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("Connected to MongoDB", zap.String("database", cfg.MongoDB.Database))
		mongo = r
		return r, nil
	}

	st := &stores{}
	switch cfg.Storage.Driver {
	case "file":
		r, err := fileRepo()
		if err != nil {
			return nil, err
		}
		st.catalog, st.users, st.settings, st.activity = r, r, r, r
	case "mongo":
		r, err := mongoRepo()
		if err != nil {
			return nil, err
		}
		st.catalog, st.users, st.settings, st.activity = r, r, r, r
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	switch cfg.Storage.LedgerDriver() {
	case "file":
		r, err := fileRepo()
		if err != nil {
			return nil, err
		}
		st.ledger = r
	case "mongo":
		r, err := mongoRepo()
		if err != nil {
			return nil, err
		}
		st.ledger = r
	case "mysql":
		l, err := repository.NewSQLLedger(&cfg.MySQL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return l.Close() })
		a.logger.Info("Using MySQL order ledger", zap.String("database", cfg.MySQL.Database))
		st.ledger = l
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Storage.LedgerDriver())
	}

	if cfg.Redis.Addr != "" {
		rc := repository.NewRedisRepository(&cfg.Redis)
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			a.logger.Warn("Redis connection failed, catalog reads fall through", zap.Error(err))
		} else {
			a.logger.Info("Redis connected successfully")
		}
		st.catalog = repository.NewCachedCatalog(st.catalog, rc, cfg.Redis.CatalogTTL, a.logger.Named("catalog"))
	}

	return st, nil
}

func openUploads(dir string) (afero.Fs, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return afero.NewBasePathFs(osFs, dir), nil
}

// Run serves HTTP and gRPC until ctx is cancelled or a listener fails, then
// shuts everything down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() {
		if err := a.gateway.Start(); err != nil {
			errCh <- fmt.Errorf("gateway: %w", err)
		}
	}()
	go func() {
		if err := a.grpc.Start(); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	regCtx, cancelReg := context.WithCancel(context.Background())
	defer cancelReg()
	a.register(regCtx)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case runErr = <-errCh:
		a.logger.Error("Server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Gateway.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

func (a *App) register(ctx context.Context) {
	if a.discovery == nil {
		return
	}
	name := a.config.Server.Name
	candidates := []*discovery.ServiceInstance{
		{Name: name, Kind: kindHTTP, Host: a.config.Gateway.Host, Port: a.config.Gateway.Port},
		{Name: name, Kind: kindGRPC, Host: a.config.Server.Host, Port: a.config.Server.Port},
	}
	for _, inst := range candidates {
		if err := a.discovery.Register(ctx, inst); err != nil {
			a.logger.Error("Failed to register service",
				zap.String("kind", inst.Kind),
				zap.Error(err))
			continue
		}
		a.instances = append(a.instances, inst)
	}
}

func (a *App) shutdown(ctx context.Context) error {
	var errs []error

	for _, inst := range a.instances {
		if err := a.discovery.Deregister(ctx, inst); err != nil {
			a.logger.Error("Failed to deregister service", zap.String("kind", inst.Kind), zap.Error(err))
		}
	}

	if err := a.gateway.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("gateway shutdown: %w", err))
	}
	a.grpc.Stop()

	errs = append(errs, a.close(ctx))
	a.logger.Info("Service stopped")
	return errors.Join(errs...)
}

// close releases backends in reverse order of opening.
func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.discovery != nil {
		errs = append(errs, a.discovery.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
