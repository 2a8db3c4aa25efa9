// Package agentcli wires the agent into its command tree. One-shot
// commands (list-devices, rumble, ...) run a short-lived agent against
// the same database and configuration the daemon uses.
package agentcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/padbridge/padbridge/internal/devsvc"
	"github.com/padbridge/padbridge/pad"
	"github.com/padbridge/padbridge/pkg/agent"
)

type listOutput struct {
	Devices []devsvc.UserDevice        `json:"devices"`
	Notices map[pad.InputMethod]string `json:"notices,omitempty"`
}

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "padbridge"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

// agentProvider builds the agent on first use, so commands that never
// touch a device do not open the database.
type agentProvider func() (*agent.Agent, error)

func NewRootCmd(configDir string) *cobra.Command {
	def := agent.Config{
		DataDir:      filepath.Join(configDir, "data"),
		DeviceConfig: filepath.Join(configDir, "devices.yml"),
	}
	rootCmd := &cobra.Command{
		Use:   "padbridge-agent",
		Short: "Gamepad input agent",
		Long:  `padbridge-agent reads game controllers through their native input methods and serves one normalized state stream per device.`,
	}
	flags := rootCmd.PersistentFlags()
	configPath := flags.String("config", filepath.Join(configDir, "agent.yml"), "agent config file")
	dataDir := flags.String("data-dir", def.DataDir, "data directory")
	deviceConfig := flags.String("device-config", def.DeviceConfig, "device assignment file")

	var cfg agent.Config
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = agent.LoadConfig(*configPath, def)
		if err != nil {
			return err
		}
		// Explicit flags win over file values.
		if flags.Changed("data-dir") {
			cfg.DataDir = *dataDir
		}
		if flags.Changed("device-config") {
			cfg.DeviceConfig = *deviceConfig
		}
		return nil
	}

	var a *agent.Agent
	provider := func() (*agent.Agent, error) {
		if a == nil {
			var err error
			a, err = agent.NewAgent(cfg)
			if err != nil {
				return nil, err
			}
		}
		return a, nil
	}
	rootCmd.AddCommand(NewRun(provider))
	rootCmd.AddCommand(NewListDevices(provider))
	rootCmd.AddCommand(NewDescribeDevice(provider))
	rootCmd.AddCommand(NewSetMethod(provider))
	rootCmd.AddCommand(NewWatch(provider))
	rootCmd.AddCommand(NewRumble(provider))
	rootCmd.AddCommand(NewMethods())
	rootCmd.AddCommand(NewSimulate())
	return rootCmd
}

func NewRun(provider agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent",
		Long:  `Runs the agent in the foreground until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := provider()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
}

// withAgent starts a short-lived agent, waits for it to come up, runs
// fn, and tears everything down again.
func withAgent(provider agentProvider, cmd *cobra.Command, fn func(ctx context.Context, a *agent.Agent) error) error {
	a, err := provider()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- a.Run(ctx)
	}()
	select {
	case <-a.Ready():
	case err := <-runErr:
		if err != nil {
			return err
		}
		return fmt.Errorf("agent stopped during startup")
	}

	fnErr := fn(ctx, a)
	cancel()
	if err := <-runErr; err != nil && fnErr == nil {
		fnErr = err
	}
	return fnErr
}

// waitActive blocks until the orchestrator holds a handle on the
// device, surfacing a validation failure instead of timing out on one.
func waitActive(ctx context.Context, a *agent.Agent, id pad.Identity) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(3 * time.Second)
	for {
		status, err := a.Poller().Status(id)
		if err != nil {
			return err
		}
		if status.Active {
			return nil
		}
		if status.Validation != nil && !status.Validation.OK {
			return fmt.Errorf("%s failed %s validation: %s", id, status.Method, status.Validation.Reason)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%s is not being polled", id)
		case <-ticker.C:
		}
	}
}

func NewListDevices(provider agentProvider) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list-devices",
		Short: "List known devices",
		Long:  `Lists every device in the registry, online or not, together with per-method enumeration notices.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(provider, cmd, func(ctx context.Context, a *agent.Agent) error {
				devices := a.Devices().List()
				notices := a.Devices().Notices()
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), listOutput{Devices: devices, Notices: notices})
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "IDENTITY\tNAME\tMETHOD\tSTATE\tENABLED")
				for _, d := range devices {
					state := "offline"
					if d.Online {
						state = "online"
					}
					assigned := d.InputMethod.String()
					if assigned == "" {
						assigned = "-"
					}
					enabled := "yes"
					if !d.IsEnabled {
						enabled = "no"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Identity, d.Label(), assigned, state, enabled)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				for _, m := range pad.Methods() {
					if msg, ok := notices[m]; ok {
						fmt.Fprintf(cmd.OutOrStdout(), "notice: %s\n", msg)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	return cmd
}

func NewSetMethod(provider agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "set-method <identity> <method>",
		Short: "Assign a device's input method",
		Long:  `Writes the assignment to devices.yml. A device being polled drops its current handle and reacquires through the new method.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pad.ParseIdentity(args[0])
			if err != nil {
				return err
			}
			m, err := pad.ParseInputMethod(args[1])
			if err != nil {
				return err
			}
			return withAgent(provider, cmd, func(ctx context.Context, a *agent.Agent) error {
				if err := a.Devices().SetMethod(id, m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now reads through %s\n", id, m)
				return nil
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
