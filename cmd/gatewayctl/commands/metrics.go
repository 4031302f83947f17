package commands

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benvon/gateway-console/internal/metricspoller"
	"github.com/benvon/gateway-console/internal/models"
	"github.com/benvon/gateway-console/internal/views"
	"github.com/spf13/cobra"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\033[H\033[2J"

// NewMetricsCmd creates the metrics command with show and watch subcommands.
func NewMetricsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Read gateway traffic counters",
	}
	cmd.AddCommand(newMetricsShowCmd(opts))
	cmd.AddCommand(newMetricsWatchCmd(opts))
	return cmd
}

// metricsOutput is the structured form of one reading.
type metricsOutput struct {
	Metrics models.MetricsSnapshot `json:"metrics" yaml:"metrics"`
	Stats   []views.Stat           `json:"stats" yaml:"stats"`
}

func newMetricsShowCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Read the gateway counters once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			s, err := opts.session()
			if err != nil {
				return err
			}
			defer s.close()

			snap, err := s.client.GetMetrics(cmd.Context())
			if err != nil {
				return fmt.Errorf("read gateway metrics from %s: %w", s.client.BaseURL(), err)
			}
			out := cmd.OutOrStdout()
			if output != outputText {
				return writeStructured(out, output, metricsOutput{Metrics: snap, Stats: views.FormatStats(snap)})
			}
			for _, stat := range views.FormatStats(snap) {
				fmt.Fprintf(out, "%-16s %s\n", stat.Name, stat.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	return cmd
}

func newMetricsWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		interval time.Duration
		count    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show live gateway counters until interrupted",
		Long:  "Poll the gateway on an interval and redraw the overview after each successful poll. A failed poll keeps the previous counters on screen.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session()
			if err != nil {
				return err
			}
			defer s.close()
			if interval <= 0 {
				interval = s.cfg.PollInterval
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			return watchMetrics(ctx, cancel, metricspoller.New(s.client, s.log), interval, count, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "poll interval (defaults to POLL_INTERVAL)")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many redraws (0 runs until interrupted)")
	return cmd
}

// watchMetrics redraws the dashboard into out on every snapshot until ctx is
// done, or until count redraws when count is positive.
func watchMetrics(ctx context.Context, cancel context.CancelFunc, source views.MetricsSource, interval time.Duration, count int, out io.Writer) error {
	var (
		mu     sync.Mutex
		drawn  int
		view   *views.DashboardView
		failed error
	)
	redraw := func() {
		mu.Lock()
		defer mu.Unlock()
		if failed != nil {
			return
		}
		if _, err := io.WriteString(out, clearScreen); err != nil {
			failed = err
			cancel()
			return
		}
		if err := view.Render(out); err != nil {
			failed = err
			cancel()
			return
		}
		drawn++
		if count > 0 && drawn >= count {
			cancel()
		}
	}
	view = views.NewDashboardView(source, interval, nil, views.WithRedraw(redraw))

	if err := view.Init(ctx); err != nil {
		return err
	}
	defer view.Teardown()

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return failed
}
