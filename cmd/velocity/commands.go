package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marlonreghert/tryvault-velocity/internal/auth"
	"github.com/marlonreghert/tryvault-velocity/internal/batch"
	"github.com/marlonreghert/tryvault-velocity/internal/client"
	"github.com/marlonreghert/tryvault-velocity/internal/config"
	"github.com/marlonreghert/tryvault-velocity/internal/handler"
	"github.com/marlonreghert/tryvault-velocity/internal/locker"
	"github.com/marlonreghert/tryvault-velocity/internal/logger"
	"github.com/marlonreghert/tryvault-velocity/internal/service"
	"github.com/marlonreghert/tryvault-velocity/internal/store"
)

const submitSubject = "velocity-submit"

type app struct {
	cfg    *config.Config
	zaplog *zap.Logger
}

// Значения флагов по умолчанию берутся из конфига, флаг перекрывает конфиг
func newRootCmd(cfg *config.Config) *cobra.Command {
	a := &app{cfg: cfg}

	root := &cobra.Command{
		Use:           "velocity",
		Short:         "Velocity limits for customer fund loads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			zaplog, err := logger.NewZapLog(a.cfg.Logger)
			if err != nil {
				return err
			}
			a.zaplog = zaplog
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.zaplog != nil {
				a.zaplog.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Logger.LogLevel, "log-level", cfg.Logger.LogLevel, "log level")
	flags.StringVar(&cfg.Store.Driver, "store", cfg.Store.Driver, "store driver: memory, bolt, postgres")
	flags.StringVarP(&cfg.Store.DBDsn, "database-uri", "d", cfg.Store.DBDsn, "postgres connection string")
	flags.StringVar(&cfg.Store.BoltPath, "bolt-path", cfg.Store.BoltPath, "bolt database file")
	flags.StringVar(&cfg.Locker.Kind, "locker", cfg.Locker.Kind, "customer locker: local, redis")
	flags.StringVar(&cfg.Locker.RedisAddr, "redis-addr", cfg.Locker.RedisAddr, "redis address")
	flags.Int64Var(&cfg.Service.Limits.LoadsPerDay, "loads-per-day", cfg.Service.Limits.LoadsPerDay, "accepted loads per day")

	root.AddCommand(
		a.newProcessCmd(),
		a.newServeCmd(),
		a.newSubmitCmd(),
		a.newTokenCmd(),
	)
	return root
}

func (a *app) newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <input> <output>",
		Short: "Evaluate a file of load requests, \"-\" means stdin or stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := store.NewStore(a.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			locker, err := locker.NewLocker(a.cfg.Locker)
			if err != nil {
				return err
			}
			defer locker.Close()

			service := service.NewService(a.cfg.Service, store, locker, a.zaplog)
			return a.runBatch(cmd, service, args[0], args[1])
		},
	}
}

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the load API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := store.NewStore(a.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			locker, err := locker.NewLocker(a.cfg.Locker)
			if err != nil {
				return err
			}
			defer locker.Close()

			auth := auth.NewAuth(a.cfg.Auth)
			service := service.NewService(a.cfg.Service, store, locker, a.zaplog)

			return handler.Serve(cmd.Context(), a.cfg.Handler, auth, service, a.zaplog)
		},
	}
	cmd.Flags().StringVarP(&a.cfg.Handler.ServerAddr, "address", "a", a.cfg.Handler.ServerAddr, "listen address")
	cmd.Flags().Float64Var(&a.cfg.Handler.RateLimitRPS, "rate-limit", a.cfg.Handler.RateLimitRPS, "requests per second, 0 disables")
	cmd.Flags().IntVar(&a.cfg.Handler.RateLimitBurst, "rate-burst", a.cfg.Handler.RateLimitBurst, "rate limiter burst")
	return cmd
}

func (a *app) newSubmitCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "submit <input> <output>",
		Short: "Send a file of load requests to a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// без явного токена выпускаем свой, если известен секрет
			if token == "" && a.cfg.Auth.Secret != "" {
				var err error
				token, err = auth.NewAuth(a.cfg.Auth).NewToken(submitSubject)
				if err != nil {
					return err
				}
			}
			client := client.NewLoadClient(a.cfg.ServerURL, token)
			return a.runBatch(cmd, batch.ProcessorFunc(client.PostLoad), args[0], args[1])
		},
	}
	cmd.Flags().StringVarP(&a.cfg.ServerURL, "server", "s", a.cfg.ServerURL, "server URL")
	cmd.Flags().StringVarP(&token, "token", "t", "", "bearer token")
	return cmd
}

func (a *app) newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token signed with AUTH_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewAuth(a.cfg.Auth).NewToken(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}

func (a *app) runBatch(cmd *cobra.Command, p batch.Processor, input, output string) (err error) {
	in, err := openInput(cmd, input)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := openOutput(cmd, output)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()

	_, err = batch.Run(cmd.Context(), p, in, out, a.zaplog)
	return err
}

func openInput(cmd *cobra.Command, name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(name)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func openOutput(cmd *cobra.Command, name string) (io.WriteCloser, error) {
	if name == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	return os.Create(name)
}
