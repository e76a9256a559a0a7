// Package app assembles stores and services from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"vcsync.org/internal/auth"
	"vcsync.org/internal/cache"
	"vcsync.org/internal/config"
	"vcsync.org/internal/did"
	"vcsync.org/internal/httpapi"
	"vcsync.org/internal/jsonld"
	"vcsync.org/internal/mail"
	"vcsync.org/internal/statuslist"
	"vcsync.org/internal/store/pg"
	"vcsync.org/internal/tenant"
)

// App holds the wired services and the resources that need closing.
type App struct {
	Services httpapi.Services
	Probe    httpapi.ReadyProbe

	db    *pg.Store
	redis *redis.Client
}

type stores struct {
	tenants     tenant.Store
	auth        auth.Store
	dids        did.Store
	statusLists statuslist.Store
	contexts    jsonld.Store
}

// New builds the application. An empty PG DSN selects in-memory stores and an empty
// Redis address selects the in-process cache.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{}
	st := stores{
		tenants:     tenant.NewInMemory(),
		auth:        auth.NewInMemory(),
		dids:        did.NewInMemory(),
		statusLists: statuslist.NewInMemory(),
		contexts:    jsonld.NewInMemory(),
	}
	if cfg.PGDSN != "" {
		db, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.db = db
		a.Probe.DB = db
		st = stores{
			tenants:     db.Tenants(),
			auth:        db.Auth(),
			dids:        db.DIDs(),
			statusLists: db.StatusLists(),
			contexts:    db.Contexts(),
		}
	} else {
		log.Warn("no database configured; using in-memory stores")
	}

	var kv cache.KV = cache.NewMemoryKV()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rkv := cache.NewRedisKV(a.redis)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rkv.Ping(pctx)
		cancel()
		if err != nil {
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		kv = rkv
		a.Probe.Cache = rkv
	}

	var sender mail.Sender = mail.LogSender{Logger: log}
	if cfg.SMTP.Host != "" {
		smtp, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		sender = smtp
	}

	var purgers []tenant.OrganizationPurger
	for _, candidate := range []any{st.dids, st.statusLists} {
		if p, ok := candidate.(tenant.OrganizationPurger); ok {
			purgers = append(purgers, p)
		}
	}
	dir := tenant.NewDirectory(st.tenants, tenant.WithPurgers(purgers...))
	tokens, err := auth.NewTokenIssuer(cfg.JWT.Secret,
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithTTLs(cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	authSvc, err := auth.NewService(st.auth, dir, tokens,
		auth.WithMailer(sender),
		auth.WithOTPTTL(cfg.OTP.TTL),
		auth.WithMaxAttempts(cfg.OTP.MaxAttempts),
		auth.WithExposeCodes(cfg.OTP.ExposeCodes),
		auth.WithLogger(log.Named("auth")),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Services = httpapi.Services{
		Auth:      authSvc,
		Directory: dir,
		DIDs: did.NewService(st.dids, dir, did.NewHTTPResolver(nil, cfg.DIDResolveTimeout),
			did.WithLogger(log.Named("did")),
		),
		StatusLists: statuslist.NewService(st.statusLists, dir,
			statuslist.WithCache(kv, cfg.ManifestCacheTTL),
			statuslist.WithDefaultPurposes(cfg.StatusListDefaultPurpose),
			statuslist.WithLogger(log.Named("statuslist")),
		),
		Contexts: jsonld.NewService(st.contexts, dir,
			jsonld.WithHTTPClient(nil, cfg.ContextFetchTimeout),
			jsonld.WithDefaultURLs(cfg.ContextURLs),
			jsonld.WithLogger(log.Named("jsonld")),
		),
	}
	return a, nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() error {
	var firstErr error
	if a.redis != nil {
		firstErr = a.redis.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
