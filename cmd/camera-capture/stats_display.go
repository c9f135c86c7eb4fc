package main

import (
	"context"
	"fmt"
	"time"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/config"
)

func printBanner(cfg *config.Config) {
	c := cfg.Camera
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Printf("║ camera-capture %s\n", version)
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Backend:     %s (camera %d)\n", c.Backend, c.ID)
	fmt.Printf("║ Requested:   %dx%d, rotation %d°, layout %s\n", c.Width, c.Height, c.Rotation, c.Layout)
	fmt.Printf("║ Sink:        %s\n", cfg.Sink.Kind)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
}

// reportStats periodically prints controller statistics until ctx is done
func reportStats(ctx context.Context, interval time.Duration, ctrl *cameracapture.Controller, sinkSummary func() string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printLiveStats(time.Since(startTime), ctrl.Stats(), sinkSummary())
		}
	}
}

func printLiveStats(uptime time.Duration, st cameracapture.CaptureStats, sinkSummary string) {
	fmt.Println()
	fmt.Println("╭─────────────────────────────────────────────────────────────────╮")
	fmt.Printf("│ Capture Statistics (Uptime: %v)\n", uptime.Round(time.Second))
	fmt.Println("├─────────────────────────────────────────────────────────────────┤")
	fmt.Printf("│   State:              %s / %s\n", st.State, st.SessionState)
	fmt.Printf("│   Resolution:         %s\n", st.Resolution)
	fmt.Printf("│   Frames Received:    %6d frames\n", st.FramesReceived)
	fmt.Printf("│   Frames Delivered:   %6d frames (%.1f%% dropped)\n", st.FramesDelivered, st.DropRate())
	fmt.Printf("│   Real FPS:           %6.2f fps\n", st.FPSReal)
	fmt.Printf("│   Latency:            %6d ms\n", st.LatencyMS)
	fmt.Printf("│   Device Errors:      %6d\n", st.DeviceErrors)
	fmt.Println("│")
	fmt.Printf("│ Sink: %s\n", sinkSummary)
	fmt.Println("╰─────────────────────────────────────────────────────────────────╯")
	fmt.Println()
}

// printFinalStats prints the statistics captured at shutdown
func printFinalStats(st cameracapture.CaptureStats, sinkSummary string) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                     Final Statistics                         ")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  Session:               %s\n", st.SessionID)
	fmt.Printf("  Resolution:            %s\n", st.Resolution)
	fmt.Printf("  Frames Received:       %d frames\n", st.FramesReceived)
	fmt.Printf("  Frames Delivered:      %d frames\n", st.FramesDelivered)
	fmt.Printf("  Average FPS:           %.2f fps\n", st.FPSReal)
	fmt.Println()
	fmt.Println("  Drops:")
	fmt.Printf("    not previewing:      %d\n", st.DroppedNotPreviewing)
	fmt.Printf("    empty:               %d\n", st.DroppedEmpty)
	fmt.Printf("    size mismatch:       %d\n", st.DroppedSizeMismatch)
	fmt.Printf("    conversion:          %d\n", st.DroppedConversion)
	fmt.Println()
	fmt.Printf("  Converter:             %d input / %d output allocations, %d bytes\n",
		st.ConverterInputAllocs, st.ConverterOutputAllocs, st.ConverterBytes)
	fmt.Printf("  Sink:                  %s\n", sinkSummary)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}
