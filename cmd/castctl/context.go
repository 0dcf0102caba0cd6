package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/castmaster/castmaster-backend/internal/orchestrator"
	"github.com/castmaster/castmaster-backend/internal/upload"
	"github.com/castmaster/castmaster-backend/pkg/appclient"
	"github.com/castmaster/castmaster-backend/pkg/auth"
	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
)

type globalFlags struct {
	configPath   string
	appURL       string
	masteringURL string
	verbose      bool
}

// commandContext lazily builds the clients shared by every subcommand.
type commandContext struct {
	flags *globalFlags

	once    sync.Once
	initErr error
	cfg     *config.ClientConfig
	logg    *logger.Logger
	jobs    *mastering.Client
	app     *appclient.Client
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensure() error {
	c.once.Do(func() {
		cfg, err := config.LoadClient(c.flags.configPath)
		if err != nil {
			c.initErr = err
			return
		}
		if c.flags.appURL != "" {
			cfg.AppURL = c.flags.appURL
		}
		if c.flags.masteringURL != "" {
			cfg.MasteringURL = c.flags.masteringURL
		}
		c.cfg = cfg

		level := logger.ParseLevel(cfg.LogLevel)
		if c.flags.verbose {
			level = zerolog.DebugLevel
		}
		c.logg = logger.New(logger.Options{ServiceName: "castctl", Level: level, Output: os.Stderr})

		c.jobs, err = mastering.NewClient(cfg.MasteringURL, mastering.WithTimeouts(0, cfg.UploadTimeout))
		if err != nil {
			c.initErr = err
			return
		}
		c.app, c.initErr = appclient.New(cfg.AppURL,
			appclient.WithSessionToken(cfg.SessionToken),
			appclient.WithUploadTimeout(cfg.UploadTimeout),
		)
	})
	return c.initErr
}

// account works out who castctl acts for. Anonymous use gets a zero Account;
// failed subscription lookups are treated as the free tier.
func (c *commandContext) account(ctx context.Context) orchestrator.Account {
	var acct orchestrator.Account
	if !c.cfg.Authenticated() {
		return acct
	}
	acct.Email = strings.TrimSpace(c.cfg.Email)
	id, err := auth.PeekIdentity(c.cfg.SessionToken)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "castctl.session_unreadable")
		return acct
	}
	acct.UserID = id.UserID
	if acct.Email == "" {
		acct.Email = id.Email
	}
	sub, err := c.app.Subscription(ctx)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "castctl.subscription_lookup_failed")
		return acct
	}
	acct.Subscriber = sub.IsSubscribed
	return acct
}

func (c *commandContext) session(ctx context.Context, kind orchestrator.Kind) (*orchestrator.Session, error) {
	cfg := orchestrator.Config{
		Kind:    kind,
		Account: c.account(ctx),
		Jobs:    c.jobs,
		App:     c.app,
		Logger:  c.logg,
	}
	if kind == orchestrator.KindMastering {
		transport, err := upload.New(c.jobs, c.logg)
		if err != nil {
			return nil, err
		}
		cfg.Uploader = transport
	}
	return orchestrator.NewSession(cfg)
}
