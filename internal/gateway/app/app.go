package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"bullrush.com/internal/chain/tron"
	"bullrush.com/internal/gateway/config"
	"bullrush.com/internal/gateway/handler"
	ghttp "bullrush.com/internal/gateway/http"
	"bullrush.com/internal/gateway/http/router"
	"bullrush.com/internal/payment/domain"
	"bullrush.com/internal/payment/event"
	"bullrush.com/internal/payment/repo"
	"bullrush.com/internal/payment/service"
	vipConfig "bullrush.com/pkg/config"
	"bullrush.com/pkg/hdwallet"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/metrics"
	"bullrush.com/pkg/middleware"
	"bullrush.com/pkg/orm"
	"bullrush.com/pkg/secret"
	"bullrush.com/pkg/trace"
	"bullrush.com/pkg/xredis"
)

const leaderKey = "payment:deposit:leader"

type App struct {
	cfg *config.Config

	db       *gorm.DB
	rdb      *redis.Client
	nats     *event.NatsPublisher
	oracle   *tron.Oracle
	verifier *service.Verifier
	handlers router.Handlers

	traceShutdown func(context.Context) error
}

func New(configName string) (*App, error) {
	if configName == "" {
		configName = "payment-api"
	}
	cfg := &config.Config{}
	if _, err := vipConfig.LoadAndWatch(configName, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", configName, err)
	}
	if cfg.Name == "" {
		cfg.Name = configName
	}
	return &App{cfg: cfg}, nil
}

// StartService opens every dependency and wires the services. The returned
// cleanup closes them in reverse order.
func (app *App) StartService(ctx context.Context) (func(), error) {
	logger.InitWithFile(app.cfg.Name, app.cfg.Log.Level, app.cfg.Log.File)
	metrics.MustRegister()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		logger.Sync()
	}
	fail := func(err error) (func(), error) {
		cleanup()
		return nil, err
	}

	shutdown, err := trace.InitTrace(app.cfg.Name, app.cfg.Trace.Host)
	if err != nil {
		return fail(err)
	}
	app.traceShutdown = shutdown
	closers = append(closers, func() { _ = app.traceShutdown(context.Background()) })

	if err := middleware.InitSentinel(app.cfg.HTTP.Sentinel); err != nil {
		return fail(err)
	}

	if app.db, err = orm.Open(app.cfg.DB.Orm()); err != nil {
		return fail(err)
	}
	closers = append(closers, func() {
		if sqlDB, err := app.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store := repo.New(app.db)
	if app.cfg.DB.AutoMigrate {
		if err := store.AutoMigrate(ctx); err != nil {
			return fail(fmt.Errorf("auto migrate: %w", err))
		}
	}

	if app.rdb, err = xredis.Open(app.cfg.Redis.Client()); err != nil {
		return fail(err)
	}
	if app.rdb != nil {
		closers = append(closers, func() { _ = app.rdb.Close() })
	} else {
		logger.Warn(ctx, "redis not configured, locks are process local")
	}

	pub, err := app.publisher(ctx)
	if err != nil {
		return fail(err)
	}
	if app.nats != nil {
		closers = append(closers, func() { _ = app.nats.Close() })
	}

	if app.oracle, err = tron.New(app.cfg.Tron); err != nil {
		return fail(err)
	}
	closers = append(closers, app.oracle.Close)

	if err := app.wire(ctx, store, pub); err != nil {
		return fail(err)
	}
	// first to run on shutdown: stop pollers before their stores close
	closers = append(closers, app.verifier.Shutdown)
	return cleanup, nil
}

func (app *App) publisher(ctx context.Context) (domain.Publisher, error) {
	if app.cfg.Nats.URL == "" {
		logger.Warn(ctx, "nats not configured, events are dropped")
		return event.Nop{}, nil
	}
	p, err := event.NewNatsPublisher(app.cfg.Nats.URL, app.cfg.Nats.Prefix, nats.Name(app.cfg.Name))
	if err != nil {
		return nil, err
	}
	app.nats = p
	return p, nil
}

func (app *App) wire(ctx context.Context, store *repo.Repo, pub domain.Publisher) error {
	depositCfg := app.cfg.Deposit.Service()
	if err := tron.ValidateAddress(depositCfg.CollectionAddress); err != nil {
		return fmt.Errorf("deposit.collection_address: %w", err)
	}

	box, err := app.keyBox(ctx)
	if err != nil {
		return err
	}
	var deriver service.KeyDeriver
	if app.cfg.Secret.Mnemonic != "" {
		w, err := hdwallet.New(app.cfg.Secret.Mnemonic)
		if err != nil {
			return fmt.Errorf("secret.mnemonic: %w", err)
		}
		deriver = w
	}

	locker := service.NewLocker(app.rdb, app.cfg.Redis.LockTTL)
	referrals := service.NewReferralEngine(app.cfg.Referral.Service(), store, store, store)
	settler := service.NewSettler(store, store, store, referrals, pub)
	app.verifier = service.NewVerifier(depositCfg, store, app.oracle, settler)
	withdrawals := service.NewWithdrawalService(app.cfg.Withdrawal.Service(), store, store, app.oracle, box, deriver, locker, pub)

	sigVerifier, err := handler.NewSignatureVerifier(app.cfg.Webhook.Secret, app.cfg.Webhook.Tolerance)
	if err != nil {
		return fmt.Errorf("webhook.secret: %w", err)
	}
	authVerifier, err := middleware.NewVerifier(app.cfg.Auth)
	if err != nil {
		return err
	}

	app.handlers = router.Handlers{
		Deposit:    handler.NewDeposit(app.verifier),
		Withdrawal: handler.NewWithdrawal(withdrawals),
		Referral:   handler.NewReferral(referrals),
		Admin:      handler.NewAdmin(service.NewAdminService(store, store)),
		Webhook:    handler.NewWebhook(service.NewIdentityService(store, referrals), sigVerifier),
		Auth:       middleware.Auth(authVerifier),
		AdminOnly:  middleware.AdminOnly(store),
	}
	return nil
}

// keyBox falls back to a throwaway key so local runs work without secrets.
func (app *App) keyBox(ctx context.Context) (*secret.Box, error) {
	key := app.cfg.Secret.MasterKey
	if key == "" {
		generated, err := secret.GenerateMasterKey()
		if err != nil {
			return nil, err
		}
		logger.Warn(ctx, "secret.master_key not set, payout wallets will not decrypt after restart")
		key = generated
	}
	box, err := secret.NewBox(key)
	if err != nil {
		return nil, fmt.Errorf("secret.master_key: %w", err)
	}
	return box, nil
}

func (app *App) StartHttp(ctx context.Context) *http.Server {
	return ghttp.NewServer(ctx, app.cfg.Name, app.cfg.HTTP, app.handlers)
}

// RunBackground drives poll resumption, the expiry sweeper and pool metrics
// until ctx is done.
func (app *App) RunBackground(ctx context.Context) error {
	var leader service.Leader
	if app.rdb != nil {
		leader = xredis.NewLeaderLock(app.rdb, leaderKey)
	}
	sqlDB, err := app.db.DB()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.verifier.RunLeader(gctx, leader, app.cfg.Deposit.LeaderTTL)
		return nil
	})
	g.Go(func() error {
		app.verifier.RunSweeper(gctx, app.cfg.Deposit.SweepInterval)
		return nil
	})
	g.Go(func() error {
		metrics.CollectPools(gctx, sqlDB, app.rdb, 15*time.Second)
		return nil
	})
	return g.Wait()
}

// Serve runs srv and the background loops until ctx is cancelled, then gives
// in-flight requests five seconds to finish.
func (app *App) Serve(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "🚀 http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return app.RunBackground(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info(shutdownCtx, "http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
