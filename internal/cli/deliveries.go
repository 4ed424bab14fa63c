package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/notifyhub/gyre/internal/domain"
)

func (a *app) newDeliveriesCmd() *cobra.Command {
	var (
		status     string
		projection string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "List recent webhook deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if projection != "" {
				q.Set("projection", projection)
			}
			q.Set("limit", strconv.Itoa(limit))

			var resp struct {
				Data  []domain.Delivery `json:"data"`
				Total int               `json:"total"`
			}
			if err := a.client.Get("/api/v1/deliveries?"+q.Encode(), &resp); err != nil {
				return fmt.Errorf("list deliveries: %w", err)
			}

			out := cmd.OutOrStdout()
			return a.render(out, resp.Data, func() {
				if len(resp.Data) == 0 {
					fmt.Fprintln(out, "No deliveries found.")
					return
				}
				fmt.Fprintf(out, "%-36s  %-8s  %-20s  %-8s  %s\n", "ID", "STATUS", "PROJECTION", "ATTEMPTS", "CREATED")
				for _, d := range resp.Data {
					fmt.Fprintf(out, "%-36s  %-8s  %-20s  %d/%-6d  %s\n",
						d.ID, d.Status, d.ProjectionID, d.Attempts, d.MaxAttempts, humanize.Time(d.CreatedAt))
				}
				if resp.Total > len(resp.Data) {
					fmt.Fprintf(out, "\n(%d of %s shown)\n", len(resp.Data), humanize.Comma(int64(resp.Total)))
				}
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, sent, failed)")
	cmd.Flags().StringVar(&projection, "projection", "", "Filter by projection id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of deliveries")
	return cmd
}
