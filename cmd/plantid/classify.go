package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phuslu/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plantid/internal/classify"
	"github.com/Brownie44l1/plantid/internal/logging"
	"github.com/Brownie44l1/plantid/internal/preprocess"
	"github.com/Brownie44l1/plantid/internal/remote"
)

var useRemote bool

var classifyCmd = &cobra.Command{
	Use:   "classify FILE...",
	Short: "Predict the species of one or more photographs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		var predict func(path string, f io.Reader) (string, error)
		if useRemote {
			client := remote.NewClient(cfg.RemoteURL, cfg.RemoteTimeout)
			predict = func(path string, f io.Reader) (string, error) {
				return client.Predict(ctx, filepath.Base(path), f)
			}
		} else {
			controller, store, _ := newPipeline()
			defer func() {
				if err := store.Close(); err != nil {
					log.Warn().Err(err).Msg("failed to release model")
				}
			}()
			if err := controller.Start(ctx); err != nil {
				return fmt.Errorf("%s: %w", classify.KindOf(err).Message(), err)
			}
			predict = func(_ string, f io.Reader) (string, error) {
				pred, err := controller.Classify(ctx, f)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%s (%.1f%%)", pred.Label, pred.Probability*100), nil
			}
		}

		var bar *progressbar.ProgressBar
		if len(args) > 1 && logging.IsTerminal() {
			bar = progressbar.NewOptions(len(args),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("Classifying"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		failures := 0
		for _, path := range args {
			result, err := classifyFile(path, predict)
			if err != nil {
				failures++
				log.Error().Err(err).Str("file", path).Msg("classification failed")
				fmt.Fprintf(out, "%s: error: %s\n", path, classify.KindOf(err).Message())
			} else {
				fmt.Fprintf(out, "%s: %s\n", path, result)
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}

		if failures > 0 {
			return fmt.Errorf("%d of %d files could not be classified", failures, len(args))
		}
		return nil
	},
}

func classifyFile(path string, predict func(string, io.Reader) (string, error)) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", preprocess.ErrPreprocess, err)
	}
	defer f.Close()
	return predict(path, f)
}

func init() {
	classifyCmd.Flags().BoolVar(&useRemote, "remote", false, "send images to the remote prediction endpoint (remote_url) instead of the local model")
	rootCmd.AddCommand(classifyCmd)
}
