package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kyiku/slide-textguard-back/internal/config"
	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/logging"
	"github.com/kyiku/slide-textguard-back/internal/mask"
	"github.com/kyiku/slide-textguard-back/internal/model"
	"github.com/kyiku/slide-textguard-back/internal/overlay"
	"github.com/kyiku/slide-textguard-back/internal/scene"
	"github.com/kyiku/slide-textguard-back/internal/solver"
)

// ErrUnresolved is returned with --strict when some item has no valid position.
var ErrUnresolved = errors.New("some items could not be placed")

type options struct {
	configPath string
	verbose    bool
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "layout-check",
		Short:        "Check text placement on a slide scene",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if opts.verbose {
				level = log.DebugLevel
			}
			cmd.SetContext(logging.WithContext(cmd.Context(), logging.New(cmd.ErrOrStderr(), level)))
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "solver TOML file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(newNearestCmd(opts))
	root.AddCommand(newEnforceCmd(opts))
	return root
}

// settings loads the solver settings, applying --config on top of the defaults.
func (o *options) settings() (controller.Settings, error) {
	cfg := config.DefaultSolverConfig()
	if o.configPath != "" {
		var err error
		cfg, err = config.LoadSolverFile(o.configPath, cfg)
		if err != nil {
			return controller.Settings{}, err
		}
	}
	return cfg.Settings(), nil
}

func newNearestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "nearest [scene.json]",
		Short: "Find the nearest valid position for the scene's query box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.FromContext(cmd.Context())
			settings, err := opts.settings()
			if err != nil {
				return err
			}
			s, err := scene.LoadFile(args[0])
			if err != nil {
				return err
			}

			p, maskOK, err := s.Nearest(settings)
			if err != nil {
				return err
			}
			if !maskOK {
				logger.Warn("mask could not be decoded, using the image rect")
			}
			logger.Debug("search finished", "status", p.Status, "evaluated", p.Evaluated)
			return printNearest(cmd.OutOrStdout(), p, opts.jsonOut)
		},
	}
}

func printNearest(w io.Writer, p solver.Placement, jsonOut bool) error {
	if jsonOut {
		out := map[string]interface{}{"found": p.Found(), "status": p.Status, "top_left": nil}
		if p.Found() {
			out["top_left"] = p.TopLeft
		}
		return json.NewEncoder(w).Encode(out)
	}
	if !p.Found() {
		_, err := fmt.Fprintf(w, "no valid position (%s)\n", p.Status)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: (%g, %g)\n", p.Status, p.TopLeft.X, p.TopLeft.Y)
	return err
}

func newEnforceCmd(opts *options) *cobra.Command {
	var (
		passes      int
		strict      bool
		overlayPath string
	)

	cmd := &cobra.Command{
		Use:   "enforce [scene.json]",
		Short: "Run the sequential enforcer over the scene's items",
		Long: `Run the sequential enforcer over the scene's items.

Items are processed in file order. Items marked "editing" never move but still
block the others. Only items that moved or could not be placed are printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.FromContext(cmd.Context())
			settings, err := opts.settings()
			if err != nil {
				return err
			}
			s, err := scene.LoadFile(args[0])
			if err != nil {
				return err
			}
			if passes > 0 {
				s.MaxPasses = passes
			}

			progress := logging.NewProgress(logger)
			report, maskOK, err := s.Enforce(settings)
			if err != nil {
				return err
			}
			if !maskOK {
				logger.Warn("mask could not be decoded, using the image rect")
			}
			progress.Done("enforced", "items", len(s.Items), "passes", report.Passes)

			if overlayPath != "" {
				if err := writeOverlay(overlayPath, s, report); err != nil {
					return err
				}
				logger.Info("overlay written", "path", overlayPath)
			}

			if err := printReport(cmd.OutOrStdout(), report, opts.jsonOut); err != nil {
				return err
			}
			if strict {
				for _, c := range report.Corrections {
					if c.StillInvalid {
						return ErrUnresolved
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&passes, "passes", 0, "maximum enforcer passes (default from config)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when an item cannot be placed")
	cmd.Flags().StringVarP(&overlayPath, "overlay", "o", "", "write a debug PNG of the result")
	return cmd
}

func printReport(w io.Writer, report solver.Report, jsonOut bool) error {
	if jsonOut {
		corrections := report.Corrections
		if corrections == nil {
			corrections = []solver.Correction{}
		}
		return json.NewEncoder(w).Encode(map[string]interface{}{
			"corrections": corrections,
			"layout":      report.Layout,
			"passes":      report.Passes,
		})
	}
	if len(report.Corrections) == 0 {
		_, err := fmt.Fprintln(w, "layout is valid")
		return err
	}
	for _, c := range report.Corrections {
		var err error
		if c.StillInvalid {
			_, err = fmt.Fprintf(w, "%s: still invalid (%s)\n", c.ID, c.Status)
		} else {
			_, err = fmt.Fprintf(w, "%s: moved to (%g, %g)\n", c.ID, c.TopLeft.X, c.TopLeft.Y)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeOverlay draws the enforced layout over the scene's allowed region.
func writeOverlay(path string, s scene.Scene, report solver.Report) error {
	canvas := model.NewCanvas(s.Allowed, 0)
	if !s.Image.Empty() {
		img := &model.ImageObject{Rect: s.Image}
		if s.Mask != nil {
			if m, err := mask.Decode(*s.Mask); err == nil {
				img.Mask = m
			}
		}
		canvas.SetImage(img)
	}

	invalid := make(map[string]bool)
	for _, c := range report.Corrections {
		invalid[c.ID] = c.StillInvalid
	}
	for i, it := range s.Items {
		ti := canvas.UpsertItem(it.ID, report.Layout[i], 0)
		ti.Invalid = invalid[it.ID]
		if it.Editing {
			ti.State = model.StateEditing
		}
	}

	data, err := overlay.NewRenderer(overlay.DefaultPalette, 1).PNG(canvas)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	return nil
}
