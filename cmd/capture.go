package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/wardrobe/internal/acquisition"
	"github.com/lehigh-university-libraries/wardrobe/internal/config"
	"github.com/lehigh-university-libraries/wardrobe/internal/export"
	"github.com/lehigh-university-libraries/wardrobe/internal/ledger"
	"github.com/lehigh-university-libraries/wardrobe/internal/models"
	"github.com/lehigh-university-libraries/wardrobe/internal/upload"
	"github.com/lehigh-university-libraries/wardrobe/internal/wardrobe"
	"github.com/spf13/cobra"
)

type captureOptions struct {
	camera     []string
	library    []string
	deny       []string
	exportPath string
}

func newCaptureCmd(root *rootOptions) *cobra.Command {
	opts := &captureOptions{}

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Add photos to the wardrobe and have them analyzed",
		Long: `Adds each photo as a pending wardrobe entry and uploads it to the
analyzer. Camera photos are taken first, then library photos, each in the
order given. Every gallery change is printed as it happens and the final
gallery is printed once all uploads have finished.

An empty value (--library "") stands for a picker the user dismissed.`,
		Example: `  # Analyze two photos from the library
  wardrobe capture --library shirt.jpg --library boots.png

  # Simulate a denied camera permission and export the result
  wardrobe capture --camera jacket.jpg --library hat.jpg --deny camera --export gallery.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.camera) == 0 && len(opts.library) == 0 {
				return fmt.Errorf("nothing to capture: pass --camera or --library")
			}
			return runCapture(cmd.Context(), cmd.OutOrStdout(), root.cfg, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.camera, "camera", nil, "Image returned by the camera (repeatable)")
	cmd.Flags().StringArrayVar(&opts.library, "library", nil, "Image chosen from the photo library (repeatable)")
	cmd.Flags().StringSliceVar(&opts.deny, "deny", nil, "Deny permission for a source (camera, library)")
	cmd.Flags().StringVarP(&opts.exportPath, "export", "o", "", "Write the final gallery to a .yaml or .parquet file")

	return cmd
}

// lockedWriter serialises writes from upload goroutines and the command.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func runCapture(ctx context.Context, w io.Writer, cfg *config.Config, opts *captureOptions) error {
	out := &lockedWriter{w: w}
	grants := map[acquisition.Source]bool{
		acquisition.Camera:  cfg.Permissions.Camera,
		acquisition.Library: cfg.Permissions.Library,
	}
	for _, d := range opts.deny {
		source, err := acquisition.ParseSource(d)
		if err != nil {
			return err
		}
		grants[source] = false
	}

	gateway := acquisition.NewGateway(
		acquisition.NewStaticPermissions(grants),
		map[acquisition.Source]acquisition.Picker{
			acquisition.Camera:  acquisition.NewFilePicker(opts.camera...),
			acquisition.Library: acquisition.NewFilePicker(opts.library...),
		},
	)

	l := ledger.New()
	unsubscribe := l.Subscribe(func(e ledger.Event) {
		printEvent(out, e)
	})
	defer unsubscribe()

	coordinator := upload.New(cfg.AnalyzerURL, l, upload.WithTimeout(cfg.UploadTimeout))
	session := wardrobe.NewSession(gateway, l, coordinator)
	slog.Debug("Uploading to analyzer", "endpoint", coordinator.Endpoint())

	for range opts.camera {
		reportOutcome(out, session.TakePhoto(ctx))
	}
	for range opts.library {
		reportOutcome(out, session.PickPhoto(ctx))
	}

	if err := session.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting for uploads: %w", err)
	}

	entries := l.Snapshot()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Gallery (%d entries)\n", len(entries))
	for _, e := range entries {
		printEntry(out, e)
	}

	summary := export.Summarize(entries)
	fmt.Fprintf(out, "\n%d complete, %d failed, %d pending\n", summary.Complete, summary.Failed, summary.Pending)

	if opts.exportPath != "" {
		if err := export.Write(opts.exportPath, cfg.AnalyzerURL, entries); err != nil {
			return err
		}
		fmt.Fprintf(out, "Gallery written to %s\n", opts.exportPath)
	}
	return nil
}

func reportOutcome(out io.Writer, r wardrobe.Result) {
	if r.Outcome.Kind == acquisition.Acquired {
		return
	}
	msg := fmt.Sprintf("%s: %s", r.Outcome.Source, r.Outcome.Kind)
	if r.Outcome.Reason != "" {
		msg += " (" + r.Outcome.Reason + ")"
	}
	fmt.Fprintln(out, msg)
}

func printEvent(out io.Writer, e ledger.Event) {
	for _, entry := range e.Entries {
		if entry.Handle == e.Handle.String() {
			fmt.Fprintf(out, "%-8s ", e.Kind)
			printEntry(out, entry)
			return
		}
	}
}

func printEntry(out io.Writer, e models.WardrobeEntry) {
	switch e.Status {
	case models.StatusComplete:
		fmt.Fprintf(out, "[%s] %s: %s\n", e.Status, e.Image.DisplayName, e.Result.Item)
		for _, r := range e.Result.Recommendations {
			fmt.Fprintf(out, "    - %s\n", r)
		}
	case models.StatusFailed:
		fmt.Fprintf(out, "[%s] %s: %s\n", e.Status, e.Image.DisplayName, strings.TrimSpace(e.ErrorMessage))
	default:
		fmt.Fprintf(out, "[%s] %s\n", e.Status, e.Image.DisplayName)
	}
}
