// Package cli implements gyrectl, a command-line client for the gyre API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type app struct {
	server  string
	output  string
	timeout time.Duration
	debug   bool

	client *Client
}

// defaultServer returns the default server URL, checking GYRE_SERVER first.
func defaultServer() string {
	if s := os.Getenv("GYRE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for gyrectl.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "gyrectl",
		Short: "Control a gyre projection scheduler",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.output {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unknown output format %q", a.output)
			}
			logger := zap.NewNop()
			if a.debug {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				logger = l
			}
			a.client = NewClient(a.server, a.timeout, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.server, "server", defaultServer(), "gyre server URL (or GYRE_SERVER env)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "Output format (table, json, yaml)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 5*time.Second, "HTTP timeout")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Log HTTP traffic")

	root.AddCommand(
		a.newPublishCmd(),
		a.newGetCmd(),
		a.newBudgetCmd(),
		a.newListenersCmd(),
		a.newSubscribeCmd(),
		a.newUnregisterCmd(),
		a.newStatsCmd(),
		a.newQueueCmd(),
		a.newDeliveriesCmd(),
	)

	return root
}

// render writes v as JSON or YAML when requested, otherwise calls table.
func (a *app) render(w io.Writer, v any, table func()) error {
	switch a.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// round-trip through JSON so field names follow the json tags
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(b, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		table()
		return nil
	}
}
