package cmd

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/dvcapture/internal/device"
	"github.com/audiolibrelab/dvcapture/internal/service"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected MiniDV camcorders",
	Long: `List the camcorders dvcapture would record from, using the configured
discovery backends. With --all every enumerated device is shown, marking
which ones pass the camcorder filter.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all {
			return listAllDevices(cmd)
		}

		svc := newService()
		if _, err := svc.Refresh(cmd.Context()); err != nil {
			return err
		}

		snap := svc.Snapshot()
		fmt.Printf("📼 MiniDV Devices (%s)\n", strings.Join(cfg.Discovery.Backends, ", "))
		fmt.Printf("═══════════════════════════════════════\n\n")

		for i, d := range snap.Devices {
			marker := " "
			if snap.Selected != nil && snap.Selected.UniqueID == d.UniqueID {
				marker = "*"
			}
			fmt.Printf(" %s %d. %s\n", marker, i+1, describeDevice(d))
		}
		if len(snap.Devices) > 0 {
			fmt.Println()
		}
		fmt.Println(snap.StatusText)
		return nil
	},
}

func listAllDevices(cmd *cobra.Command) error {
	raw, err := service.NewEnumerator(cfg.Discovery).Enumerate(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}

	filter := device.NewFilter(device.MediaKind(cfg.Discovery.Capability), cfg.Discovery.Tokens)

	fmt.Printf("📋 ALL DEVICES (%d found):\n", len(raw))
	for i, d := range raw {
		status := "ignored"
		if filter.Matches(d) {
			status = "camcorder"
		}
		fmt.Printf("  %d. [%s] %s\n", i+1, status, describeDevice(d))
	}

	fmt.Printf("\n💡 Filter:\n")
	fmt.Printf("  • capability: %s\n", cfg.Discovery.Capability)
	fmt.Printf("  • tokens: %s\n", strings.Join(cfg.Discovery.Tokens, ", "))
	fmt.Printf("  • Add your camcorder's vendor to discovery.tokens if it is ignored\n\n")
	return nil
}

func describeDevice(d device.Device) string {
	caps := make([]string, len(d.Capabilities))
	for i, c := range d.Capabilities {
		caps[i] = string(c)
	}

	desc := d.Name()
	if d.Manufacturer != "" && !strings.Contains(desc, d.Manufacturer) {
		desc = d.Manufacturer + " " + desc
	}
	return fmt.Sprintf("%s (%s, id %s, %s)", desc, d.Transport, d.UniqueID, strings.Join(caps, "/"))
}

func init() {
	devicesCmd.Flags().Bool("all", false, "show every enumerated device, not only camcorders")
}
