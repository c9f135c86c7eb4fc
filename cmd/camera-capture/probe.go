package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/config"
)

type probeOptions struct {
	Backend  string
	CameraID int
}

func newProbeCommand(root *rootOptions) *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Print the preview capabilities of a camera",
		Example: `  camera-capture probe
  camera-capture probe --backend gst --camera 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("backend") {
				cfg.Camera.Backend = opts.Backend
			}
			if cmd.Flags().Changed("camera") {
				cfg.Camera.ID = opts.CameraID
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}

			be, err := newBackend(cfg.Camera, logger)
			if err != nil {
				return fmt.Errorf("failed to create backend: %w", err)
			}
			caps, err := probe(be.driver, cfg.Camera.ID)
			if err != nil {
				return err
			}
			printCapabilities(os.Stdout, cfg.Camera.ID, caps)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Backend, "backend", "sim", "Camera backend: sim or gst")
	flags.IntVar(&opts.CameraID, "camera", 0, "Camera id")

	return cmd
}

// probe opens the camera only long enough to read its capabilities
func probe(driver cameracapture.Driver, id int) (cameracapture.Capabilities, error) {
	dev, err := driver.Open(id)
	if err != nil {
		return cameracapture.Capabilities{}, fmt.Errorf("open camera %d: %w", id, err)
	}
	defer dev.Release()

	caps, err := dev.Capabilities()
	if err != nil {
		return cameracapture.Capabilities{}, fmt.Errorf("read capabilities of camera %d: %w", id, err)
	}
	return caps, nil
}

func printCapabilities(w io.Writer, id int, caps cameracapture.Capabilities) {
	sizes := make([]string, len(caps.PreviewSizes))
	for i, s := range caps.PreviewSizes {
		sizes[i] = s.String()
	}

	fmt.Fprintf(w, "Camera %d\n", id)
	fmt.Fprintf(w, "  Preview sizes:  %s\n", joinOrNone(sizes))
	fmt.Fprintf(w, "  Focus modes:    %s\n", joinOrNone(caps.FocusModes))
	fmt.Fprintf(w, "  Color effects:  %s\n", joinOrNone(caps.ColorEffects))
	fmt.Fprintf(w, "  Scene modes:    %s\n", joinOrNone(caps.SceneModes))
	if caps.ZoomSupported {
		ratios := make([]string, len(caps.ZoomRatios))
		for i, r := range caps.ZoomRatios {
			ratios[i] = fmt.Sprintf("%d", r)
		}
		fmt.Fprintf(w, "  Zoom ratios:    %s\n", joinOrNone(ratios))
	} else {
		fmt.Fprintf(w, "  Zoom ratios:    not supported\n")
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
