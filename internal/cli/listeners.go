package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/service"
)

func (a *app) newListenersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listeners",
		Short: "List registered listeners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Data []service.ListenerInfo `json:"data"`
			}
			if err := a.client.Get("/api/v1/listeners", &resp); err != nil {
				return fmt.Errorf("list listeners: %w", err)
			}

			out := cmd.OutOrStdout()
			return a.render(out, resp.Data, func() {
				if len(resp.Data) == 0 {
					fmt.Fprintln(out, "No listeners registered.")
					return
				}
				fmt.Fprintf(out, "%-8s  %-20s  %-8s  %-30s  %s\n", "HANDLE", "NAME", "PRIORITY", "PROJECTIONS", "URL")
				for _, l := range resp.Data {
					fmt.Fprintf(out, "%-8d  %-20s  %-8d  %-30s  %s\n",
						l.Handle, l.Name, l.Priority, strings.Join(l.ProjectionIDs, ","), l.URL)
				}
			})
		},
	}
}

func (a *app) newSubscribeCmd() *cobra.Command {
	var req domain.RegisterListenerRequest
	cmd := &cobra.Command{
		Use:   "subscribe <url> <projection>...",
		Short: "Register a webhook listener",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URL = args[0]
			req.ProjectionIDs = args[1:]

			var info service.ListenerInfo
			if err := a.client.Post("/api/v1/listeners", req, &info); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			out := cmd.OutOrStdout()
			return a.render(out, info, func() {
				fmt.Fprintf(out, "registered listener %d (%s)\n", info.Handle, info.Name)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Listener name")
	cmd.Flags().IntVar(&req.Priority, "priority", 0, "Priority; higher runs first")
	cmd.Flags().IntVar(&req.MaxAttempts, "max-attempts", 0, "Delivery attempts before giving up (0 = server default)")
	return cmd
}

func (a *app) newUnregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <handle> [projection...]",
		Short: "Unsubscribe a listener from some or all of its projections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || h == 0 {
				return fmt.Errorf("handle must be a positive integer")
			}
			q := url.Values{}
			for _, p := range args[1:] {
				q.Add("projection", p)
			}
			path := fmt.Sprintf("/api/v1/listeners/%d", h)
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			if err := a.client.Delete(path); err != nil {
				return fmt.Errorf("unregister %d: %w", h, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unregistered listener %d\n", h)
			return nil
		},
	}
}
