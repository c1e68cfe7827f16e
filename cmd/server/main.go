// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	_ "github.com/tomtom215/beacon/docs" // Registers the OpenAPI document
	"github.com/tomtom215/beacon/internal/api"
	"github.com/tomtom215/beacon/internal/auth"
	"github.com/tomtom215/beacon/internal/authz"
	"github.com/tomtom215/beacon/internal/config"
	"github.com/tomtom215/beacon/internal/dispatch"
	"github.com/tomtom215/beacon/internal/logging"
	"github.com/tomtom215/beacon/internal/registry"
	"github.com/tomtom215/beacon/internal/supervisor"
	"github.com/tomtom215/beacon/internal/supervisor/services"
	ws "github.com/tomtom215/beacon/internal/websocket"
)

type options struct {
	configPath string
	hashKey    string
	issueToken string
	roles      []string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// Operator tooling that runs without starting the server.
	if opts.hashKey != "" {
		if err := printKeyHash(opts.hashKey); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		// Logger still has its init-time defaults here.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if opts.issueToken != "" {
		if err := printToken(cfg, opts.issueToken, opts.roles); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Beacon stopped with error")
	}
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("beacon", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", os.Getenv(config.ConfigPathEnvVar), "path to YAML config file")
	fs.StringVar(&opts.hashKey, "hash-api-key", "", "print the bcrypt hash of a producer API key and exit")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print a signed JWT for this subject and exit")
	fs.StringSliceVar(&opts.roles, "roles", nil, "roles for --issue-token (comma separated)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: beacon [flags]\n\n%s", fs.FlagUsages())
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

//nolint:gocyclo // sequential wiring
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logging.Info().
		Str("store", cfg.Store.Backend).
		Bool("relay", cfg.Relay.Enabled).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting Beacon")

	// === DATA ===

	st, err := openStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing notification store")
		}
	}()

	reg := registry.New()

	// === RELAY ===

	rl, err := startRelay(&cfg.Relay)
	if err != nil {
		return err
	}

	var dispatchOpts []dispatch.Option
	if rl != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithPublisher(rl.publisher))
	}
	dispatcher := dispatch.New(st.store, reg, dispatch.Config{PushTimeout: cfg.Delivery.PushTimeout}, dispatchOpts...)

	if rl != nil {
		if err := rl.subscribe(dispatcher); err != nil {
			rl.close()
			return err
		}
		defer rl.close()
	}

	// === AUTH ===

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return fmt.Errorf("jwt manager: %w", err)
	}
	apiKeys := auth.NewAPIKeyVerifier(cfg.Security.ProducerKeyHashes)
	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		return fmt.Errorf("authz enforcer: %w", err)
	}
	logging.Info().Int("producer_keys", len(cfg.Security.ProducerKeyHashes)).Msg("Authentication configured")

	// === DELIVERY + HTTP ===

	sessions := ws.NewManager(reg, jwtManager, ws.ConfigFromDelivery(cfg.Delivery))

	deps := api.HandlerDeps{
		Sender:   dispatcher,
		Store:    st.store,
		Sessions: sessions,
		Clients:  reg,
	}
	// Left nil when disabled so health reports the relay as disabled.
	if rl != nil {
		deps.Relay = rl.links
	}
	handler := api.NewHandler(deps, api.HandlerConfig{
		DefaultPageSize: cfg.Delivery.DefaultPageSize,
		MaxPageSize:     cfg.Delivery.MaxPageSize,
		AllowedOrigins:  cfg.Security.CORSOrigins,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		JWT:        jwtManager,
		APIKeys:    apiKeys,
		Enforcer:   enforcer,
		Middleware: api.ChiMiddlewareConfigFromSecurity(&cfg.Security),
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// === SUPERVISOR TREE ===

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	if st.badger != nil {
		tree.AddDataService(services.NewStoreGCService(st.badger, cfg.Store.GCInterval))
	}
	if rl != nil {
		if rl.server != nil {
			tree.AddDataService(services.NewEmbeddedBrokerService(rl.server, cfg.Server.ShutdownTimeout))
		}
		tree.AddMessagingService(services.NewRelaySubscriberService(rl.subscriber))
	}
	tree.AddMessagingService(services.NewSessionManagerService(sessions))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Beacon stopped")
	return nil
}
