package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plantid/internal/classify"
	"github.com/Brownie44l1/plantid/internal/config"
	"github.com/Brownie44l1/plantid/internal/logging"
	"github.com/Brownie44l1/plantid/internal/model"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is loaded once before any subcommand runs
	cfg        config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "plantid",
	Short:         "Identify plant species from photographs",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func Execute() {
	// Cancel on Ctrl+C (SIGINT) or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// newPipeline wires the local inference pipeline from cfg.
func newPipeline() (*classify.Controller, *model.Store, *model.Engine) {
	loader := model.NewONNXLoader(cfg.ModelURL, cfg.ONNXLibrary, cfg.Labels, cfg.ImageSize)
	store := model.NewStore(loader)
	engine := model.NewEngine()
	return classify.NewController(store, engine), store, engine
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: $PLANTID_CONFIG or ./config.yaml)")
}
