package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/riskwatch/internal/api"
	"github.com/ppiankov/riskwatch/internal/reload"
	"github.com/ppiankov/riskwatch/internal/rules"
)

var startupTimeout time.Duration

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes the analysis API over HTTP:

  POST /api/v1/analyze/text     {"text": "...", "source_platform": "...", "content_type": "..."}
  POST /api/v1/analyze/url      {"url": "..."}
  POST /api/v1/advisor/check    {"name": "...", "registration_number": "..."}
  GET  /api/v1/recent?limit=N
  GET  /api/v1/dashboard?recent=N
  GET  /api/v1/rules
  POST /api/v1/admin/reload     Authorization: Bearer <server.admin_token>
  GET  /health
  GET  /metrics

With rules.watch the rule file is reloaded when it changes. A remote rule
set is re-fetched every rules.poll. A reload that fails validation keeps the
current rules serving.

Example:
  riskwatch serve --port 8000
  RISKWATCH_SERVER_ADMIN_TOKEN=secret riskwatch serve --rules ./rules.yaml --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "listen host (default: server.host)")
	serveCmd.Flags().Int("port", 0, "listen port (default: server.port)")
	serveCmd.Flags().String("rules", "", "rule set file or URL (default: rules.path)")
	serveCmd.Flags().Bool("watch", false, "reload the rule file on change")
	serveCmd.Flags().DurationVar(&startupTimeout, "startup-timeout", 30*time.Second, "timeout for loading rules and reference tables")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("rules.path", serveCmd.Flags().Lookup("rules"))
	_ = viper.BindPFlag("rules.watch", serveCmd.Flags().Lookup("watch"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := configure()
	if err != nil {
		return err
	}

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), startupTimeout)
	a, err := newApp(loadCtx, cfg, log)
	cancelLoad()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startReloaders(ctx, a); err != nil {
		return err
	}

	router := api.NewRouter(*cfg, api.Dependencies{
		Pipeline:    a.pipeline,
		Metrics:     a.metrics,
		RuleSource:  a.ruleSource,
		TableSource: a.tableSource,
		Version:     Version,
		Logger:      log,
	})
	srv := api.NewServer(*cfg, router.Setup())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", Version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// startReloaders runs a file watcher or a remote poller, as configured
func startReloaders(ctx context.Context, a *app) error {
	rc := a.cfg.Rules
	switch src := a.ruleSource.(type) {
	case rules.FileSource:
		if !rc.Watch {
			return nil
		}
		w, err := reload.NewWatcher(src.Path, a.engine, reload.DefaultDebounce, a.log)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				a.log.Error().Err(err).Msg("rule watcher stopped")
			}
		}()
	case rules.URLSource:
		if rc.Poll <= 0 {
			return nil
		}
		p := reload.NewPoller(src, a.engine, rc.Poll, a.log)
		go func() { _ = p.Run(ctx) }()
	default:
		if rc.Watch {
			a.log.Warn().Msg("rules.watch ignored for the built-in rule set")
		}
	}
	return nil
}
