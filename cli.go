package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Zachkp/portfolio/internal/config"
	"github.com/Zachkp/portfolio/internal/contact"
	"github.com/Zachkp/portfolio/internal/logger"
	"github.com/Zachkp/portfolio/internal/store"
)

func newRootCmd() *cobra.Command {
	var port string

	root := &cobra.Command{
		Use:   "portfolio",
		Short: "Personal portfolio site with a contact form",
		Long: `portfolio serves the single-page portfolio site and forwards contact
form submissions to the configured email delivery service.

Configuration comes from the environment (and a .env file when present).
Run without a subcommand to start the web server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}
	root.PersistentFlags().StringVarP(&port, "port", "p", "", "HTTP port (overrides PORT)")

	serve := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	root.AddCommand(serve, newSendCmd(), newPruneCmd(), newHashPasswordCmd())
	return root
}

func loadConfig(ctx context.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	log := logger.Init(cfg.SlogLevel())
	return cfg, log, nil
}

func runServe(ctx context.Context, port string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
	}
	gin.SetMode(cfg.Mode)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	d, err := newDispatcher(cfg, log)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, st, d, nil, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx, listenAddr(cfg.Port))
}

func newSendCmd() *cobra.Command {
	var msg contact.Message

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one contact message through the configured dispatcher",
		Example: `  portfolio send --name Ada --email ada@example.com \
    --subject Hello --message "Hi there"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			d, err := newDispatcher(cfg, log)
			if err != nil {
				return err
			}
			return sendOnce(cmd.Context(), cmd.OutOrStdout(), d, msg)
		},
	}

	cmd.Flags().StringVar(&msg.Name, "name", "", "sender name")
	cmd.Flags().StringVar(&msg.Email, "email", "", "sender email address")
	cmd.Flags().StringVar(&msg.Subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&msg.Body, "message", "", "message body")
	return cmd
}

// sendOnce drives a single workflow through one submission.
func sendOnce(ctx context.Context, out io.Writer, d contact.Dispatcher, msg contact.Message) error {
	var notice string
	wf := contact.NewWorkflow(contact.Options{
		Dispatcher: d,
		Notifier: contact.NotifierFunc(func(err *contact.DispatchError) {
			notice = err.UserMessage()
		}),
	})
	defer wf.Close()

	for _, f := range contact.Fields {
		if err := wf.UpdateField(f, msg.Get(f)); err != nil {
			return err
		}
	}

	err := wf.Submit(ctx)
	var verr *contact.ValidationError
	switch {
	case err == nil:
		fmt.Fprintln(out, "Message sent.")
		return nil
	case errors.As(err, &verr):
		for _, fe := range verr.Fields {
			fmt.Fprintf(out, "--%s: %s\n", fe.Field, fe.Message())
		}
		return err
	default:
		if notice != "" {
			fmt.Fprintln(out, notice)
		}
		return err
	}
}

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete visitor records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.PruneVisits(cmd.Context(), time.Now().Add(-cfg.VisitorRetention))
			if err != nil {
				return err
			}
			log.Info("privacy cleanup finished", "removed", n)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d visitor records.\n", n)
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := hashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
