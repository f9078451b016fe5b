package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/api"
	"github.com/AaronLay10/pipecheck/internal/events"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve validation over HTTP",
		Long: `Run the validation service. POST a document to /validate to get its report.

Run history (postgres) and verdict publishing (mqtt) are enabled when
configured. Basic auth is enabled when PIPECHECK_ADMIN_USER and
PIPECHECK_ADMIN_PASSWORD (or their _FILE variants) are set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().IntP("port", "p", 0, "listen port (default from config, 8080)")
	_ = a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	auth, err := api.AuthFromEnv()
	if err != nil {
		return err
	}
	if !auth.Enabled() {
		a.log.Warn("basic auth disabled: PIPECHECK_ADMIN_USER/PASSWORD not set")
	}

	bus := events.NewBus(events.DefaultBufferSize)
	stop := logEvents(bus, a.log)
	defer stop()
	s := a.openSinks(ctx, bus)
	defer s.close(a.log)

	srvCfg := a.cfg.Server
	opts := api.Options{
		Validator:       a.newValidator(),
		Bus:             bus,
		Auth:            auth,
		TLS:             api.TLSConfig{CertFile: srvCfg.TLSCertFile, KeyFile: srvCfg.TLSKeyFile},
		Logger:          a.log,
		CacheTTL:        srvCfg.CacheTTL,
		MaxBodySize:     srvCfg.MaxBodySize,
		RequirePostgres: srvCfg.RequirePostgres,
		RequireMQTT:     srvCfg.RequireMQTT,
	}
	// Interfaces stay nil when the sink is absent.
	if s.history != nil {
		opts.History = s.history
	}
	if s.publisher != nil {
		opts.Broker = s.publisher
	}

	if err := api.NewServer(opts).ListenAndServe(ctx, srvCfg.ListenPort()); err != nil {
		return fmt.Errorf("api server failed: %w", err)
	}
	a.log.Info("api stopped", zap.Int("events", int(bus.TotalCount())))
	return nil
}
