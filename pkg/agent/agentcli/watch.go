package agentcli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pkg/agent"
)

func NewWatch(provider agentProvider) *cobra.Command {
	var diff bool
	cmd := &cobra.Command{
		Use:   "watch <identity>",
		Short: "Stream state snapshots",
		Long:  `Subscribes to one device's state stream and prints a JSON line per change until interrupted. With --diff, prints only the controls that differ from the activation baseline.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pad.ParseIdentity(args[0])
			if err != nil {
				return err
			}
			return withAgent(provider, cmd, func(ctx context.Context, a *agent.Agent) error {
				ch := a.Poller().States().Subscribe(ctx, id)
				enc := json.NewEncoder(cmd.OutOrStdout())
				for {
					select {
					case <-ctx.Done():
						return nil
					case msg := <-ch:
						ev := msg.Payload
						if !diff {
							if err := enc.Encode(ev); err != nil {
								return err
							}
							continue
						}
						// The baseline moves on reacquisition, so it is
						// re-read per event rather than captured once.
						base := pad.State{}
						if status, err := a.Poller().Status(id); err == nil && status.Baseline != nil {
							base = *status.Baseline
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", ev.State.ReadMicro, diffLine(base, ev.State))
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&diff, "diff", false, "print changes against the activation baseline")
	return cmd
}

// diffLine renders the controls that differ from the baseline, one
// token per control: +a/-a for buttons, left_x=+0.50 for axes.
func diffLine(base, st pad.State) string {
	var parts []string
	for b := pad.Button(0); b < pad.MaxButtons; b++ {
		was, is := base.Buttons.IsSet(b), st.Buttons.IsSet(b)
		if was == is {
			continue
		}
		sign := "+"
		if !is {
			sign = "-"
		}
		parts = append(parts, sign+b.String())
	}
	for a := pad.Axis(0); a < pad.AxisCount; a++ {
		if delta := st.Axes[a] - base.Axes[a]; delta > 0.01 || delta < -0.01 {
			parts = append(parts, fmt.Sprintf("%s=%+.2f", a, st.Axes[a]))
		}
	}
	if st.DPad != base.DPad {
		parts = append(parts, "dpad="+st.DPad.String())
	}
	if len(parts) == 0 {
		return "baseline"
	}
	return strings.Join(parts, " ")
}

func NewRumble(provider agentProvider) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "rumble <identity> <low> <high> [left-trigger right-trigger]",
		Short: "Send a force-feedback pulse",
		Long:  `Sends motor levels in 0..1 to a device for the given duration, then stops the motors. Trigger motor levels only reach devices whose method carries them.`,
		Args:  cobra.RangeArgs(3, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 4 {
				return fmt.Errorf("trigger levels come as a pair: <left-trigger> <right-trigger>")
			}
			id, err := pad.ParseIdentity(args[0])
			if err != nil {
				return err
			}
			var levels [4]float64
			for i, arg := range args[1:] {
				levels[i], err = strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("invalid motor level %q: %w", arg, err)
				}
			}
			fb := pad.Feedback{
				LowFrequency:  levels[0],
				HighFrequency: levels[1],
				LeftTrigger:   levels[2],
				RightTrigger:  levels[3],
			}
			return withAgent(provider, cmd, func(ctx context.Context, a *agent.Agent) error {
				if err := waitActive(ctx, a, id); err != nil {
					return err
				}
				res, err := a.Poller().SendFeedback(ctx, id, fb)
				if err != nil {
					return err
				}
				if !res.OK {
					detail := res.Detail
					if detail == "" {
						detail = string(res.Reason)
					}
					return fmt.Errorf("feedback not delivered: %s", detail)
				}
				select {
				case <-time.After(duration):
				case <-ctx.Done():
				}
				// Motors stay on until told otherwise; zero them even
				// when the wait was interrupted.
				if _, err := a.Poller().SendFeedback(context.WithoutCancel(ctx), id, pad.Feedback{}); err != nil && ctx.Err() == nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", time.Second, "pulse length")
	return cmd
}
