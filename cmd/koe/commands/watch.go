package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/koelabs/koe/pkg/cli"
	"github.com/koelabs/koe/pkg/detect"
	"github.com/koelabs/koe/pkg/dispatch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of detections from the message bus",
	Long: `Subscribe to the koed message bus and show detections as they
happen. Requires bus.enabled in the daemon configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Bus.Enabled {
			return errors.New("bus is disabled; set bus.enabled in the koed config to watch")
		}
		conn, err := nats.Connect(cfg.Bus.URL, nats.Name("koe-watch"))
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer conn.Close()

		detections := cli.NewLogWriter(64)
		pipeline := cli.NewLogWriter(64)

		subDetected, err := conn.Subscribe(dispatch.SubjectDetected, func(m *nats.Msg) {
			var d detect.Detection
			if err := json.Unmarshal(m.Data, &d); err != nil {
				fmt.Fprintf(detections, "%s unreadable detection: %v\n", time.Now().Format("15:04:05"), err)
				return
			}
			verified := " "
			if d.IsVoiceVerified {
				verified = "✓"
			}
			fmt.Fprintf(detections, "%s %s %q -> %s (%.3f)\n",
				d.At.Format("15:04:05"), verified, d.Command.Trigger, d.Command.Action, d.Confidence)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", dispatch.SubjectDetected, err)
		}
		defer subDetected.Unsubscribe()

		subEnabled, err := conn.Subscribe(dispatch.SubjectEnabled, func(m *nats.Msg) {
			var msg struct {
				Enabled bool      `json:"enabled"`
				At      time.Time `json:"at"`
			}
			if err := json.Unmarshal(m.Data, &msg); err != nil {
				return
			}
			state := "disabled"
			if msg.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(pipeline, "%s detection %s\n", msg.At.Format("15:04:05"), state)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", dispatch.SubjectEnabled, err)
		}
		defer subEnabled.Unsubscribe()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		frame := cli.Frame{
			Styles: cli.NewStyles(cli.DefaultTheme),
			Title:  "koe watch",
			Status: cfg.Bus.URL,
			Sections: []cli.Section{
				{Label: "detections", Content: detections.Lines},
				{Label: "pipeline", Content: pipeline.Lines},
			},
			Help: "ctrl-c to quit",
		}
		width, height := termSize()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			// Clear and redraw the whole frame; it is small enough
			// that diffing is not worth it.
			fmt.Print("\033[2J\033[H" + frame.Render(width, height))
			select {
			case <-ctx.Done():
				fmt.Println()
				return nil
			case <-ticker.C:
			case <-detections.Notify():
			case <-pipeline.Notify():
			}
		}
	},
}

// termSize reads COLUMNS/LINES, falling back to a conservative frame.
func termSize() (width, height int) {
	width, height = 100, 30
	if v, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && v > 20 {
		width = v
	}
	if v, err := strconv.Atoi(os.Getenv("LINES")); err == nil && v > 10 {
		height = v - 1
	}
	return width, height
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
