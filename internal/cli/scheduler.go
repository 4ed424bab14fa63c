package cli

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/service"
)

func (a *app) newBudgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "budget [ms]",
		Short: "Show or set the per-pass time budget",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				ms, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("budget must be an integer number of milliseconds")
				}
				if err := a.client.Put("/api/v1/scheduler/budget", domain.BudgetRequest{BudgetMS: ms}); err != nil {
					return fmt.Errorf("set budget: %w", err)
				}
			}

			var b domain.BudgetRequest
			if err := a.client.Get("/api/v1/scheduler/budget", &b); err != nil {
				return fmt.Errorf("get budget: %w", err)
			}
			return a.render(out, b, func() {
				fmt.Fprintf(out, "time budget: %s\n", time.Duration(b.BudgetMS)*time.Millisecond)
			})
		},
	}
}

type stats struct {
	Queued       int64 `json:"queued"`
	Listeners    int64 `json:"listeners"`
	Projections  int64 `json:"projections"`
	TimeBudgetMS int64 `json:"time_budget_ms"`
}

func (a *app) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scheduler counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st stats
			if err := a.client.Get("/api/v1/scheduler/stats", &st); err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			out := cmd.OutOrStdout()
			return a.render(out, st, func() {
				fmt.Fprintf(out, "queued:       %s\n", humanize.Comma(st.Queued))
				fmt.Fprintf(out, "listeners:    %s\n", humanize.Comma(st.Listeners))
				fmt.Fprintf(out, "projections:  %s\n", humanize.Comma(st.Projections))
				fmt.Fprintf(out, "time budget:  %s\n", time.Duration(st.TimeBudgetMS)*time.Millisecond)
			})
		},
	}
}

func (a *app) newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the ready queue, next item first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var view service.QueueView
			if err := a.client.Get("/api/v1/queue", &view); err != nil {
				return fmt.Errorf("get queue: %w", err)
			}
			out := cmd.OutOrStdout()
			return a.render(out, view, func() {
				if len(view.Items) == 0 {
					fmt.Fprintln(out, "Queue is empty.")
					return
				}
				fmt.Fprintf(out, "%-30s  %-8s  %-8s  %s\n", "PROJECTION", "LISTENER", "PRIORITY", "RESUMING")
				for i := len(view.Items) - 1; i >= 0; i-- {
					it := view.Items[i]
					fmt.Fprintf(out, "%-30s  %-8d  %-8d  %t\n", it.ProjectionID, it.Listener, it.Priority, it.Resuming)
				}

				prios := make([]int, 0, len(view.Depths))
				for p := range view.Depths {
					prios = append(prios, p)
				}
				sort.Sort(sort.Reverse(sort.IntSlice(prios)))
				fmt.Fprintln(out)
				for _, p := range prios {
					fmt.Fprintf(out, "priority %d: %s item(s)\n", p, humanize.Comma(int64(view.Depths[p])))
				}
			})
		},
	}
}
