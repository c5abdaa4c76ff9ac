package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tallybook.io/internal/auth"
	"tallybook.io/internal/billing"
	"tallybook.io/internal/blob"
	"tallybook.io/internal/config"
	"tallybook.io/internal/document"
	"tallybook.io/internal/httpapi"
	"tallybook.io/internal/ledger"
	"tallybook.io/internal/mail"
	"tallybook.io/internal/obs"
	"tallybook.io/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// redisPinger adapts a redis client to the readiness probe.
type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

func main() {
	log := obs.Log()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	obs.InitLogger(cfg.Log.Level, cfg.Log.Format)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTel.ServiceVersion == "" {
		cfg.OTel.ServiceVersion = version
	}
	telemetry, err := obs.SetupTracing(ctx, cfg.OTel)
	if err != nil {
		log.WithError(err).Fatal("setup tracing")
	}

	store, err := pg.Open(cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer store.Close()

	ready := httpapi.ReadyProbe{store}
	var roles auth.RoleCache
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.WithError(err).Fatal("parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		roles = auth.NewRedisRoleCache(rdb, cfg.Redis.RoleTTL)
		ready = append(ready, redisPinger{rdb})
	}

	var blobs *blob.Bucket
	if u := cfg.Storage.BucketURL(); u != "" {
		blobs, err = blob.Open(ctx, u)
	} else {
		blobs, err = blob.NewFS(cfg.Storage.Dir)
	}
	if err != nil {
		log.WithError(err).Fatal("open blob storage")
	}
	defer blobs.Close()
	sender, err := mail.New(cfg.Mail)
	if err != nil {
		log.WithError(err).Fatal("configure mail")
	}
	renderer := document.NewPDFRenderer(time.Now)

	api, err := buildAPI(cfg, store, roles, blobs, sender, renderer, ready)
	if err != nil {
		log.WithError(err).Fatal("wire services")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 2)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version}).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	grpcSrv, health := httpapi.NewGRPCServer(ready, 10*time.Second)
	go health.Run(ctx)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.WithError(err).Fatal("grpc listen")
		}
		go func() {
			log.WithField("addr", cfg.GRPCAddr).Info("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		log.WithError(err).Error("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	grpcSrv.GracefulStop()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("telemetry shutdown")
	}
	log.Info("stopped")
}

func buildAPI(cfg config.Config, store *pg.Store, roles auth.RoleCache, blobs blob.Storage,
	sender mail.Sender, renderer document.Renderer, ready httpapi.ReadyProbe) (*httpapi.API, error) {
	codec, err := auth.NewCodec(cfg.Auth.Secret)
	if err != nil {
		return nil, err
	}
	resolver, err := auth.NewResolver(store, roles)
	if err != nil {
		return nil, err
	}
	users, err := auth.NewUserService(store, codec, roles)
	if err != nil {
		return nil, err
	}
	directory, err := billing.NewDirectory(store)
	if err != nil {
		return nil, err
	}
	led, err := ledger.NewService(store, blobs)
	if err != nil {
		return nil, err
	}
	work, err := billing.NewWorkOrders(billing.WorkOrdersConfig{
		Store:    store,
		Blobs:    blobs,
		Renderer: renderer,
		Mailer:   sender,
		CutOff:   cfg.Billing.CutOffDate,
	})
	if err != nil {
		return nil, err
	}
	invoices, err := billing.NewInvoices(billing.InvoicesConfig{
		Store:      store,
		Ledger:     led,
		Blobs:      blobs,
		Renderer:   renderer,
		Mailer:     sender,
		GSTPercent: cfg.Billing.GSTPercent,
	})
	if err != nil {
		return nil, err
	}
	return httpapi.New(httpapi.Deps{
		Session:      auth.NewSessionPolicy(codec, nil),
		Resolver:     resolver,
		Users:        users,
		Directory:    directory,
		WorkOrders:   work,
		Invoices:     invoices,
		Ledger:       led,
		Ready:        ready,
		Version:      version,
		HTTP:         cfg.HTTP,
		CookieSecure: cfg.Auth.CookieSecure,
	})
}
