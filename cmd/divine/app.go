package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"divination-ai/internal/config"
	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/infra/adapters/backend"
	"divination-ai/internal/infra/adapters/telegram"
	"divination-ai/internal/infra/api/apiv1"
	"divination-ai/internal/infra/i18n"
	"divination-ai/internal/infra/logging"
	"divination-ai/internal/usecase"
)

// cancelGrace bounds the wait for the session to settle after Ctrl-C.
const cancelGrace = 5 * time.Second

// app is the wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *zerolog.Logger
	backend *backend.HTTPBackend
	tr      *i18n.Translator
	out     io.Writer
}

func newApp(f *rootFlags) (*app, error) {
	cfg, err := config.LoadConfig(f.config, f.dev)
	if err != nil {
		return nil, err
	}
	if f.server != "" {
		cfg.Client.ServerURL = strings.TrimRight(f.server, "/")
	}
	if f.lang != "" {
		cfg.Client.Lang = f.lang
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.Log, cfg.Runtime.Dev)

	token, err := bearerToken(cfg)
	if err != nil {
		return nil, err
	}
	b, err := backend.NewHTTPBackend(cfg.Client.ServerURL, token, cfg.Client.RequestTimeout)
	if err != nil {
		return nil, err
	}
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Client.Lang)
	if err != nil {
		return nil, fmt.Errorf("client.lang: %w (available: %s)", err, strings.Join(i18n.Languages(), ", "))
	}
	return &app{cfg: cfg, log: logger, backend: b, tr: tr, out: os.Stdout}, nil
}

// bearerToken returns the configured token, or mints one for client.user_id
// when the shared secret is available.
func bearerToken(cfg *config.Config) (string, error) {
	if cfg.Client.Token != "" {
		return cfg.Client.Token, nil
	}
	auth, err := apiv1.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return "", err
	}
	return auth.Mint(cfg.Client.UserID)
}

func (a *app) profile(name string) (model.ProviderProfile, error) {
	if name == "" {
		name = a.cfg.AI.DefaultProvider
	}
	p, ok := a.cfg.Client.Provider(name)
	if !ok {
		return model.ProviderProfile{}, fmt.Errorf("%w: no profile for provider %q", domain.ErrMissingProvider, name)
	}
	return p, nil
}

// divine runs one session from draw to a terminal state. Cancelling ctx
// cancels the job.
func (a *app) divine(ctx context.Context, f *rootFlags, draw model.Draw, meta model.Metadata) error {
	profile, err := a.profile(f.provider)
	if err != nil {
		return err
	}

	console := newConsoleObserver(a.out, a.tr)
	observers := multiObserver{console}

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	renderCtx, cancelRender := context.WithCancel(gctx)
	defer cancelRender()
	if f.telegram {
		renderer, err := a.telegramRenderer()
		if err != nil {
			return err
		}
		observers = append(observers, renderer)
		g.Go(func() error {
			renderer.Run(renderCtx)
			return nil
		})
	}

	sess, err := usecase.NewSession(draw.Mode, a.backend, profile, usecase.SystemClock{}, observers, usecase.SessionOptions{
		PollInterval:    a.cfg.Client.PollInterval,
		RefreshInterval: a.cfg.Client.RefreshInterval,
		CancelTimeout:   a.cfg.Client.RequestTimeout,
		MaxQuestionLen:  a.cfg.Client.MaxQuestionLen,
	}, a.log)
	if err != nil {
		return err
	}
	defer func() {
		sess.Close()
		cancelRender()
		_ = g.Wait()
	}()

	if err := sess.BeginDraw(); err != nil {
		return err
	}
	if err := sess.ConfirmDraw(draw); err != nil {
		return err
	}
	for _, label := range sess.PositionLabels() {
		fmt.Fprintln(a.out, "  "+label)
	}

	job, err := sess.Submit(ctx, f.question, meta)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, a.tr.T("submitted", job.ID, profile.Name))

	select {
	case <-sess.Done():
	case <-ctx.Done():
		if sess.Cancel() {
			fmt.Fprintln(a.out, "\n"+a.tr.T("cancelling"))
		}
		select {
		case <-sess.Done():
		case <-time.After(cancelGrace):
		}
	}

	snap := sess.Snapshot()
	console.final(snap)
	switch snap.State {
	case model.SessionCompleted:
		return nil
	case model.SessionTimedOut:
		fmt.Fprintln(a.out, a.tr.T("job_id", job.ID))
		return nil
	case model.SessionCancelled:
		return errors.New(usecase.MsgCancelled)
	default:
		return fmt.Errorf("divination ended in state %s", snap.State)
	}
}

func (a *app) telegramRenderer() (*telegram.ProgressRenderer, error) {
	tc := a.cfg.Telegram
	if tc.Token == "" || tc.ChatID == 0 {
		return nil, errors.New("telegram.token and telegram.chat_id are required for --telegram")
	}
	bot, err := telegram.NewBotSender(tc.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return telegram.NewProgressRenderer(bot, tc.ChatID, 3*time.Second, a.tr, a.log), nil
}
