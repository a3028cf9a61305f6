package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/client/config"
	"github.com/spf13/cobra"
)

// NewRootCommand returns the authctl root with the client commands. extra
// commands (the operator ones) are attached as siblings.
func (a *App) NewRootCommand(extra ...*cobra.Command) *cobra.Command {
	var (
		configPath string
		server     string
		sessionDB  string
		timeout    time.Duration
	)

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Gatekeeper account and session tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "client config file (JSON)")
	root.PersistentFlags().StringVarP(&server, "server", "a", "", "gRPC endpoint host:port")
	root.PersistentFlags().StringVar(&sessionDB, "session", "", "session database path")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 0, "per-request timeout")

	loadConfig := func() error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if server != "" {
			cfg.ServerEndpointAddr = server
		}
		if sessionDB != "" {
			cfg.SessionPath = sessionDB
		}
		if timeout > 0 {
			cfg.RequestTimeout = timeout
		}
		a.config = cfg
		return nil
	}

	client := []*cobra.Command{
		a.signupCmd(), a.verifyCmd(), a.resendCmd(), a.loginCmd(), a.refreshCmd(),
		a.logoutCmd(), a.whoamiCmd(), a.resetRequestCmd(), a.resetCmd(), a.pingCmd(),
	}
	for _, c := range client {
		c.PreRunE = func(*cobra.Command, []string) error { return loadConfig() }
		root.AddCommand(c)
	}
	root.AddCommand(a.usersCmd(loadConfig))
	root.AddCommand(extra...)

	return root
}

// withService runs fn against a connected service under the request timeout.
func (a *App) withService(ctx context.Context, fn func(ctx context.Context, svc authService) error) error {
	svc, cleanup, err := a.connect(ctx, a.config)
	if err != nil {
		return err
	}
	defer cleanup()

	if a.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.RequestTimeout)
		defer cancel()
	}
	return fn(ctx, svc)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

var errVerifyTarget = errors.New("either --user-id or --identity is required")
