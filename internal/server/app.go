// Package server builds every component from the configuration and runs the
// gRPC endpoint, the metrics listener, the delivery workers and the sweep
// scheduler until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/delivery"
	"github.com/dmitrijs2005/gatekeeper/internal/server/jobs"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"

	gs "github.com/dmitrijs2005/gatekeeper/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       *redis.Client
	nats        *nats.Conn
	metrics     *metrics.Metrics
	dispatcher  *delivery.Dispatcher
	userService *services.UserService
	sweeper     *services.Sweeper
}

// OpenDB opens the Postgres pool behind dsn and checks it is reachable.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db, metrics: metrics.New()}

	var limiter ratelimit.AttemptLimiter = ratelimit.Nop{}
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})
		limiter = ratelimit.NewRedisLimiter(app.redis, "", c.VerifyMaxAttempts, c.VerifyAttemptWindow)
	} else {
		logger.Warn(ctx, "redis not configured, verify attempts are not limited")
	}

	var sender delivery.Sender = delivery.NewLogSender(logger)
	if c.NATSURL != "" {
		nc, err := delivery.ConnectNATS(c.NATSURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("nats connect error: %w", err)
		}
		app.nats = nc
		sender = delivery.NewNATSSender(nc, c.DeliverySubject)
	} else {
		logger.Warn(ctx, "nats not configured, verification codes are written to the log")
	}

	app.dispatcher = delivery.NewDispatcher(sender, logger, delivery.WithMetrics(app.metrics))

	broker := services.NewVerificationBroker(db, rm, app.dispatcher, limiter,
		c.VerificationCodeTTL, c.ResendInterval, logger).WithMetrics(app.metrics)

	issuer := auth.NewIssuer([]byte(c.SecretKey), c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration,
		auth.WithLeeway(c.ClockSkew))

	app.userService = services.NewUserService(db, rm, issuer, auth.NewPasswordHasher(0), broker, c.DefaultPhoneRegion, logger)
	app.sweeper = services.NewSweeper(db, rm, c.UnverifiedGracePeriod, c.SweepBatchSize, app.metrics, logger)

	return app, nil
}

// Close releases the external connections. Safe on a partially built App.
func (app *App) Close() {
	if app.nats != nil {
		if err := app.nats.Drain(); err != nil {
			app.nats.Close()
		}
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.userService, app.metrics)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())

	srv := &http.Server{
		Addr:              app.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.dispatcher.Start(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx, cancelFunc)
		}()
	}

	sweep := jobs.Func(app.sweeper.Name(), func(ctx context.Context) error {
		_, err := app.sweeper.Run(ctx)
		return err
	})
	scheduler := jobs.NewScheduler(sweep, app.config.SweepInterval, true, app.logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	wg.Wait()
	app.dispatcher.Wait()
	app.Close()

	app.logger.Info(context.Background(), "App stopped")
}
