// Command gitgud-server exposes the Git Smart HTTP transport over
// plain net/http, wiring the config, telemetry and localrepo packages
// onto internal/transport/httpgit. Command construction follows
// kubernetes-kubernetes's cmd/kubeadm/app/cmd style: a cobra.Command
// whose Run closure builds a fully-wired server from a Config.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anndream/gitgud/internal/config"
	"github.com/anndream/gitgud/internal/localrepo"
	"github.com/anndream/gitgud/internal/telemetry"
	"github.com/anndream/gitgud/internal/transport/httpgit"
)

func main() {
	if err := NewCmdRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewCmdRoot builds the root gitgud-server command.
func NewCmdRoot() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "gitgud-server",
		Short: "Serve Git Smart HTTP for a directory of bare repositories.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	cfg.BindFlags(cmd.Flags())
	return cmd
}

func run(cfg *config.Config) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	locator := localrepo.NewLocator(cfg.ReposRoot)
	handler := httpgit.NewHandler(&httpgit.Handler{
		Locator:    locator,
		Authorizer: localrepo.OpenAuthorizer{AllowAnonymousRead: cfg.AllowAnonymousRead},
		Credentials: localrepo.StaticCredentials{
			Users: map[string]string{},
		},
		Observer: telemetry.NewZapObserver(log),
		Logger:   telemetry.NewLogger(log),
		Realm:    cfg.Realm,
	})

	log.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("reposRoot", cfg.ReposRoot))
	return http.ListenAndServe(cfg.ListenAddr, handler)
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return zapCfg.Build()
}
