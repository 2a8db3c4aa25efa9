package agentcli

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/padbridge/padbridge/internal/method/docs"
	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pkg/agent"
)

func NewDescribeDevice(provider agentProvider) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "describe-device <identity>",
		Short: "Dump a device's report descriptor",
		Long:  `Dumps the raw HID report descriptor, its decoded layout, and the parsing the hidraw method would apply: a profile name or the generic field mapping.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pad.ParseIdentity(args[0])
			if err != nil {
				return err
			}
			return withAgent(provider, cmd, func(ctx context.Context, a *agent.Agent) error {
				hidraw := a.Hidraw()
				if hidraw == nil {
					return fmt.Errorf("the hidraw method is disabled in the config")
				}
				desc, err := hidraw.Describe(id)
				if err != nil {
					return err
				}
				if raw {
					data, err := hex.DecodeString(desc.Descriptor)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				return printJSON(cmd.OutOrStdout(), desc)
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print raw descriptor bytes")
	return cmd
}

// NewMethods renders the capability table from the embedded reference
// pages. It needs no agent and touches no device.
func NewMethods() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "Show input method capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := docs.Load()
			if err != nil {
				return err
			}
			if jsonOut {
				ordered := make([]docs.Page, 0, len(pages))
				for _, m := range pad.Methods() {
					ordered = append(ordered, pages[m])
				}
				return printJSON(cmd.OutOrStdout(), ordered)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tDEVICES\tBACKGROUND\tTRIGGERS\tGUIDE\tRUMBLE")
			for _, m := range pad.Methods() {
				p := pages[m]
				limit := "unlimited"
				if p.Cap > 0 {
					limit = strconv.Itoa(p.Cap)
				}
				guide := "no"
				if p.Guide {
					guide = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", m, limit, p.Background, p.Triggers, guide, p.Rumble)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	return cmd
}
