package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plantid/internal/handlers"
)

const shutdownTimeout = 10 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload API backed by the local classifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if servePort != "" {
			cfg.Port = servePort
		}

		controller, store, engine := newPipeline()
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to release model")
			}
		}()

		// Load in the background so /state reports loading-model meanwhile.
		go func() {
			if err := controller.Start(ctx); err != nil {
				log.Error().Err(err).Str("model_url", cfg.ModelURL).Msg("classifier unavailable")
			}
		}()

		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())
		router.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:    []string{"Content-Type"},
		}))
		handlers.NewHandler(controller, cfg.MaxUploadBytes).Register(router)

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("port", cfg.Port).Str("model_url", cfg.ModelURL).Strs("labels", cfg.Labels).Msg("server starting")
			log.Info().Msg("endpoints: GET /health, GET /state, POST /predict (multipart field \"image\")")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		calls, mean := engine.Stats()
		log.Info().Uint64("forward_passes", calls).Dur("mean_pass", mean).Msg("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides config and $PORT)")
	rootCmd.AddCommand(serveCmd)
}
