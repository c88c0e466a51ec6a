package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/nocturnal-server/internal/app"
	"github.com/vovakirdan/nocturnal-server/internal/config"
	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/log"
	"github.com/vovakirdan/nocturnal-server/internal/proto"
)

type rootOptions struct {
	configPath string
	addr       string
	dbPath     string

	cfg    config.Config
	logger *zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "nocturnal",
		Short:        "Nocturnal private messaging server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides config)")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and WebSocket server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(opts)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create database tables and indexes",
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := app.OpenStore(cmd.Context(), &opts.cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				opts.logger.Info().Str("db_path", opts.cfg.DatabasePath).Msg("schema applied")
				return nil
			},
		},
		newUserCmd(opts),
		newTokenCmd(opts),
		newHistoryCmd(opts),
	)

	return root
}

func (o *rootOptions) load() error {
	bootstrap := log.New("info", "console")

	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return err
	}

	cfg.UpdateFrom(config.Config{Addr: o.addr, DatabasePath: o.dbPath})

	o.cfg = cfg
	o.logger = log.New(cfg.LogLevel, cfg.LogFormat)
	o.logger.Debug().Str("config", path).Msg("configuration loaded")
	return nil
}

func runServe(opts *rootOptions) error {
	if opts.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &opts.cfg, opts.logger)
	if err != nil {
		opts.logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	opts.logger.Info().Str("addr", opts.cfg.Addr).Msg("starting nocturnal server")
	if err := application.Run(ctx); err != nil {
		opts.logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	opts.logger.Info().Msg("server stopped")
	return nil
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage identities",
	}

	var phone, name, avatar string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a new identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := app.OpenStore(cmd.Context(), &opts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			user, err := app.NewAuthService(&opts.cfg, st).RegisterUser(cmd.Context(), phone, name, avatar)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Phone)
			return nil
		},
	}
	add.Flags().StringVar(&phone, "phone", "", "phone number")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&avatar, "avatar", "", "avatar URL")
	_ = add.MarkFlagRequired("phone")

	userCmd.AddCommand(add)
	return userCmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for an identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is not configured")
			}

			st, err := app.OpenStore(cmd.Context(), &opts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			token, err := app.NewAuthService(&opts.cfg, st).IssueToken(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var a, b int64

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation between two identities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := app.OpenStore(cmd.Context(), &opts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			engine := core.NewEngine(st, core.NewFanout(core.NewRegistry(), opts.logger), nil, opts.logger)
			messages, err := engine.History(cmd.Context(), a, b)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Time", "From", "To", "Type", "Status", "Content"})
			table.SetAutoWrapText(false)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)

			for _, m := range messages {
				view := proto.NewMessageView(m)
				content := "<deleted>"
				if view.Content != nil {
					content = *view.Content
					if view.Edited {
						content += " (edited)"
					}
				}
				table.Append([]string{
					strconv.FormatInt(view.ID, 10),
					view.Timestamp.Local().Format(time.DateTime),
					strconv.FormatInt(view.SenderID, 10),
					strconv.FormatInt(view.ReceiverID, 10),
					view.Type,
					view.Status,
					content,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int64Var(&a, "a", 0, "first user id")
	cmd.Flags().Int64Var(&b, "b", 0, "second user id")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")
	return cmd
}
