package cli

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func (a *app) newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <projection> <json>",
		Short: "Publish a new snapshot of a projection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(args[1])
			if !json.Valid(data) {
				return fmt.Errorf("snapshot must be valid JSON")
			}
			if err := a.client.Put("/api/v1/projections/"+url.PathEscape(args[0]), data); err != nil {
				return fmt.Errorf("publish %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", args[0])
			return nil
		},
	}
}

func (a *app) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <projection>",
		Short: "Print the latest snapshot of a projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snapshot any
			if err := a.client.Get("/api/v1/projections/"+url.PathEscape(args[0]), &snapshot); err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			return a.render(cmd.OutOrStdout(), snapshot, func() {
				b, _ := json.MarshalIndent(snapshot, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
			})
		},
	}
}
