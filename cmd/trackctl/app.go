package main

import (
	"context"
	"net/http"

	"github.com/oktotrack/console/handlers"
	"github.com/oktotrack/console/internal/auth"
	"github.com/oktotrack/console/internal/authstate"
	"github.com/oktotrack/console/internal/config"
	"github.com/oktotrack/console/internal/httpclient"
	"github.com/oktotrack/console/internal/refresh"
	"github.com/oktotrack/console/internal/sessions"
)

// app is the session stack one command runs against.
type app struct {
	cfg   *config.Config
	state *authstate.State
	auth  *auth.Client
	coord *refresh.Coordinator
	api   *httpclient.Client
	close func()
}

// opener builds the app for a command invocation.
type opener func(ctx context.Context) (*app, error)

func openFromConfig(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	store, closeStore, err := sessions.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return wire(cfg, store, closeStore), nil
}

// wire talks to the console's passthrough routes, the same ones the browser
// frontend uses.
func wire(cfg *config.Config, store sessions.Store, closeStore func()) *app {
	hc := &http.Client{Timeout: cfg.Backend.Timeout}
	state := authstate.New(store)
	client := auth.NewClient(auth.Config{
		BaseURL:     cfg.Session.ConsoleURL,
		LoginPath:   handlers.LoginRoute,
		RefreshPath: handlers.RefreshRoute,
		CheckPath:   handlers.CheckRoute,
		HTTPClient:  hc,
	}, store, state)
	coord := refresh.NewCoordinator(client, refresh.WithWindow(cfg.Session.RefreshWindow))
	return &app{
		cfg:   cfg,
		state: state,
		auth:  client,
		coord: coord,
		api:   httpclient.New(cfg.Session.ConsoleURL, httpclient.Compose(coord, client), hc),
		close: func() {
			state.Teardown()
			if closeStore != nil {
				closeStore()
			}
		},
	}
}
