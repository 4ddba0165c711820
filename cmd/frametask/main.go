package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l1jgo/frametask/internal/config"
	"github.com/l1jgo/frametask/internal/persist"
)

func main() {
	code, err := newRootCmd().execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

type rootCmd struct {
	cmd        *cobra.Command
	configPath string
	exitCode   int
}

func newRootCmd() *rootCmd {
	r := &rootCmd{}
	r.cmd = &cobra.Command{
		Use:           "frametask",
		Short:         "Frame-stepped world driven by async routines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	r.cmd.PersistentFlags().StringVar(&r.configPath, "config", "",
		"config file (.toml or .yaml); defaults to $"+config.EnvPath+" or "+config.DefaultPath)

	r.cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the demo world until it exits, hits max_frames, or is interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := r.setup()
				if err != nil {
					return err
				}
				defer log.Sync()
				code, err := run(cmd.Context(), cfg, log)
				r.exitCode = code
				return err
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the routine journal schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := r.setup()
				if err != nil {
					return err
				}
				defer log.Sync()
				return migrate(cmd.Context(), cfg, log)
			},
		},
	)
	return r
}

func (r *rootCmd) execute() (int, error) {
	if err := r.cmd.ExecuteContext(context.Background()); err != nil {
		return 1, err
	}
	return r.exitCode, nil
}

// setup loads config and builds the logger. A missing config file at the
// default path falls back to built-in defaults.
func (r *rootCmd) setup() (*config.Config, *zap.Logger, error) {
	path := config.Path(r.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		if r.configPath != "" || os.Getenv(config.EnvPath) != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = config.Default()
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func migrate(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Journal.DSN == "" {
		return fmt.Errorf("journal.dsn is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Journal, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	n, err := persist.RunMigrations(ctx, db.Pool, log)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK(fmt.Sprintf("journal schema up to date (%d applied)", n))
	return nil
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
