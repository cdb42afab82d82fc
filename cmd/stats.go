package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"
)

type statsSnapshot struct {
	Version       string `json:"version"`
	OnlineUsers   int    `json:"online_users"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Delivered     uint64 `json:"delivered"`
	DroppedLocal  uint64 `json:"dropped_local"`
}

// statsCmd renders a small terminal dashboard on top of the stats endpoint.
func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Live terminal dashboard for a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "http://localhost:8085",
				Usage: "Base URL of the server",
			},
			&cli.StringFlag{
				Name:     "token",
				Required: true,
				Usage:    "Bearer token for the stats endpoint",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: 2 * time.Second,
				Usage: "Polling interval",
			},
		},
		Action: func(c *cli.Context) error {
			return runDashboard(c.String("addr"), c.String("token"), c.Duration("interval"))
		},
	}
}

func runDashboard(addr, token string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("terminal init: %w", err)
	}
	defer ui.Close()

	summary := widgets.NewParagraph()
	summary.Title = " snappy-server "
	summary.SetRect(0, 0, 60, 7)

	deliveredLine := widgets.NewSparkline()
	deliveredLine.LineColor = ui.ColorGreen
	deliveredPlot := widgets.NewSparklineGroup(deliveredLine)
	deliveredPlot.Title = " delivered/s "
	deliveredPlot.SetRect(0, 7, 30, 14)

	droppedLine := widgets.NewSparkline()
	droppedLine.LineColor = ui.ColorRed
	droppedPlot := widgets.NewSparklineGroup(droppedLine)
	droppedPlot.Title = " dropped/s "
	droppedPlot.SetRect(30, 7, 60, 14)

	client := &http.Client{Timeout: 5 * time.Second}
	var prev statsSnapshot
	var havePrev bool

	refresh := func() {
		snap, err := fetchStats(client, addr, token)
		if err != nil {
			summary.Text = fmt.Sprintf("poll failed: %v", err)
			ui.Render(summary, deliveredPlot, droppedPlot)
			return
		}

		summary.Text = fmt.Sprintf(
			"version:  %s\nonline:   %d\nuptime:   %s\ndelivered: %d\ndropped:   %d",
			snap.Version,
			snap.OnlineUsers,
			(time.Duration(snap.UptimeSeconds) * time.Second).String(),
			snap.Delivered,
			snap.DroppedLocal,
		)

		if havePrev {
			deliveredLine.Data = appendPoint(deliveredLine.Data, float64(snap.Delivered-prev.Delivered))
			droppedLine.Data = appendPoint(droppedLine.Data, float64(snap.DroppedLocal-prev.DroppedLocal))
		}
		prev, havePrev = snap, true

		ui.Render(summary, deliveredPlot, droppedPlot)
	}
	refresh()

	uiEvents := ui.PollEvents()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				ui.Clear()
				refresh()
			}
		case <-ticker.C:
			refresh()
		}
	}
}

func fetchStats(client *http.Client, addr, token string) (statsSnapshot, error) {
	req, err := http.NewRequest(http.MethodGet, addr+"/api/stats", nil)
	if err != nil {
		return statsSnapshot{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return statsSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statsSnapshot{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var snap statsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return statsSnapshot{}, err
	}
	return snap, nil
}

// appendPoint keeps a rolling window sized to the sparkline width.
func appendPoint(data []float64, v float64) []float64 {
	const window = 28
	data = append(data, v)
	if len(data) > window {
		data = data[len(data)-window:]
	}
	return data
}
