package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"interview_room/internal/logging"
	"interview_room/internal/storage"
	"interview_room/internal/utils"
	"interview_room/pkg/config"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(strings.TrimSpace(*c.configFlag))
	})
	return c.config, c.configErr
}

// logger 依設定建立 logger，呼叫端負責 Sync
func (c *commandContext) logger() (*config.Config, *zap.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "interviewd",
		Short:         "Live interview room orchestration service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newSweepCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))
	return rootCmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub, sweeper and pipeline consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := ctx.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if migrate && cfg.Store == "postgres" {
				if err := storage.Migrate(cmd.Context(), cfg.DB); err != nil {
					return err
				}
				logger.Info("migrations applied")
			}
			return runServer(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply database migrations before serving")
	return cmd
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := storage.Migrate(cmd.Context(), cfg.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue invitations and time out disconnected participants once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := ctx.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			expired, timedOut, err := a.services.Sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			a.services.Wait()
			fmt.Fprintf(cmd.OutOrStdout(), "expired invitations: %d\ntimed out participants: %d\n", expired, timedOut)
			return nil
		},
	}
}

// newTokenCommand 本機開發時簽發主持人 token，正式環境由外部身份服務簽發
func newTokenCommand(ctx *commandContext) *cobra.Command {
	var userID, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user is required")
			}
			token, err := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL).GenerateToken(userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to embed in the token")
	cmd.Flags().StringVar(&role, "role", "host", "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
