package cmd

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/wardrobe/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	verbose    bool
	cfg        *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wardrobe",
		Short: "Photograph clothing and get styling advice from a vision model",
		Long: `Wardrobe adds photos of clothing items to a gallery and has each one
analyzed by a remote stylist service.

Entries appear immediately as pending and are updated in place as the
analyzer answers, in whatever order the answers arrive.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			if opts.verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}

			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			slog.Debug("Configuration loaded", "analyzer_url", cfg.AnalyzerURL, "upload_timeout", cfg.UploadTimeout)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./wardrobe.yaml if present)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newCaptureCmd(opts))
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}
