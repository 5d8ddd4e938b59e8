package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/wardrobe/internal/handlers"
	"github.com/lehigh-university-libraries/wardrobe/internal/stylist"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string
	var provider string
	var model string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the stylist analyzer service",
		Long: `Starts the analyzer that the capture pipeline uploads photos to.

POST /analyze accepts a multipart form with a "photo" field and answers
with {"item": "...", "recommendations": [...]} produced by a
vision-capable LLM (Ollama, OpenAI or Gemini).`,
		Example: `  # Start on the default port 3000 with Ollama
  wardrobe serve

  # Use OpenAI on a custom port
  wardrobe serve --port 8080 --provider openai --model gpt-4o`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if !cmd.Flags().Changed("port") {
				port = cfg.Port
			}
			if provider == "" {
				provider = cfg.Stylist.Provider
			}
			if model == "" {
				model = cfg.Stylist.Model
			}
			if model == "" {
				model = stylist.DefaultModel(provider)
			}

			llm, err := stylist.NewProvider(provider, cfg.Stylist.OllamaURL)
			if err != nil {
				return err
			}
			handler := handlers.New(stylist.NewService(llm, model))

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           handlers.NewRouter(handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Stylist analyzer available", "addr", addr, "url", "http://localhost"+addr, "provider", provider, "model", model)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "3000", "Port to listen on")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (ollama, openai, or gemini)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (defaults to provider's default)")

	return cmd
}
