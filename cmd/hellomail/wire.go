package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/hellomail/internal/config"
	"github.com/dropDatabas3/hellomail/internal/email"
	"github.com/dropDatabas3/hellomail/internal/observability/logger"
	"github.com/dropDatabas3/hellomail/internal/rate"
	"github.com/dropDatabas3/hellomail/internal/security/secretbox"
)

// deps es todo lo que arman los subcomandos a partir de la config.
type deps struct {
	cfg       *config.Config
	service   *email.Service
	templates *email.CachedSource
	metrics   *email.Metrics
	box       *secretbox.Box // nil si no hay master key
}

// errSMTPDisabled lo devuelve el sender cuando la CLI corre sin SMTP (preview).
var errSMTPDisabled = errors.New("smtp not configured")

type disabledSender struct{}

func (disabledSender) Send(context.Context, *email.Message) error { return errSMTPDisabled }

// buildDeps arma sender, templates, sealer y service. Con requireSMTP=false
// la falta de datos SMTP no es error y el sender queda deshabilitado.
func buildDeps(cfg *config.Config, reg prometheus.Registerer, requireSMTP bool) (*deps, error) {
	log := logger.Named("wire")
	d := &deps{cfg: cfg}

	var sender email.Sender = disabledSender{}
	if err := cfg.Email.RequireSMTP(); err != nil {
		if requireSMTP {
			return nil, err
		}
		log.Debug("smtp disabled", logger.Err(err))
	} else {
		port, _ := cfg.Email.Port()
		s, err := email.NewSMTPSender(email.SMTPConfig{
			Host:               cfg.Email.MailServerAddress,
			Port:               port,
			Username:           cfg.Email.UserID,
			Password:           cfg.Email.UserPassword,
			LocalName:          cfg.Email.LocalDomain,
			TLSMode:            cfg.Email.TLSMode,
			InsecureSkipVerify: cfg.Email.InsecureSkipVerify,
			Timeout:            cfg.Email.Timeout,
		})
		if err != nil {
			return nil, err
		}
		sender = s
		log.Info("smtp configured",
			logger.Host(cfg.Email.MailServerAddress),
			logger.Int("port", port),
			logger.String("tls_mode", cfg.Email.TLSMode),
			logger.Bool("auth", cfg.Email.UserID != ""),
		)
	}

	var src email.TemplateSource
	if dir := strings.TrimSpace(cfg.Templates.Dir); dir != "" {
		src = email.DirSource(dir)
		log.Info("templates from directory", logger.String("dir", dir))
	} else {
		src = email.EmbeddedSource()
	}
	d.templates = email.NewCachedSource(src, cfg.Templates.CacheTTL)

	var sealer email.Sealer
	if key := cfg.Security.SecretBoxMasterKey; key != "" {
		box, err := secretbox.New(key)
		if err != nil {
			return nil, fmt.Errorf("secretbox: %w", err)
		}
		d.box = box
		sealer = box
	} else {
		log.Warn(secretbox.EnvMasterKey + " not set, activation codes go unencrypted in links")
	}

	if reg != nil {
		m, err := email.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		d.metrics = m
	}

	svc, err := email.NewService(email.ServiceConfig{
		Sender:      sender,
		Templates:   d.templates,
		From:        email.Mailbox{Name: cfg.Email.FromName, Address: fromAddress(cfg)},
		Sealer:      sealer,
		FrontendURL: cfg.Frontend.URL,
		Metrics:     d.metrics,
	})
	if err != nil {
		return nil, err
	}
	d.service = svc
	return d, nil
}

// fromAddress permite previsualizar sin config SMTP.
func fromAddress(cfg *config.Config) string {
	if a := strings.TrimSpace(cfg.Email.FromAddress); a != "" {
		return a
	}
	return "no-reply@localhost"
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "hellomail",
		Version:     version,
	}
}

// buildLimiter devuelve nil si el límite está desactivado (rate.max <= 0).
// El cleanup cierra el cliente Redis cuando corresponde.
func buildLimiter(ctx context.Context, cfg *config.Config) (rate.Limiter, func(), error) {
	noop := func() {}
	if cfg.Rate.Max <= 0 {
		return nil, noop, nil
	}
	log := logger.Named("wire")

	if cfg.Rate.Driver != "redis" {
		log.Info("send rate limit (memory)", logger.Int("max", cfg.Rate.Max), logger.Duration(cfg.Rate.Window))
		return rate.NewMemoryLimiter(cfg.Rate.Max, cfg.Rate.Window), noop, nil
	}

	client := rdb.NewClient(&rdb.Options{
		Addr:     cfg.Rate.Redis.Addr,
		Password: cfg.Rate.Redis.Password,
		DB:       cfg.Rate.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, noop, fmt.Errorf("redis ping %s: %w", cfg.Rate.Redis.Addr, err)
	}
	log.Info("send rate limit (redis)",
		logger.String("addr", cfg.Rate.Redis.Addr),
		logger.Int("max", cfg.Rate.Max),
		logger.Duration(cfg.Rate.Window),
	)
	return rate.NewRedisLimiter(client, "", cfg.Rate.Max, cfg.Rate.Window), func() { _ = client.Close() }, nil
}
