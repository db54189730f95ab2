package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/audiolibrelab/dvcapture/internal/naming"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and the next recording path",
	Long:  `Display the resolved configuration with inheritance indicators and the path the next recording would be written to. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		source := cfg.File
		if source == "" {
			source = "(built-in defaults)"
		}

		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("config_file: %s\n", source)
		fmt.Printf("profile: %s\n", cfg.Profile)
		fmt.Printf("next_recording: %s\n", naming.NewGenerator(cfg.Output.Prefix, cfg.Output.Extension).NextPath(cfg.Output.Directory, time.Now()))

		fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")

		fmt.Printf("\n[Output]\n")
		printSetting("directory", cfg.Output.Directory, "output.directory")
		printSetting("prefix", cfg.Output.Prefix, "output.prefix")
		printSetting("extension", cfg.Output.Extension, "output.extension")

		fmt.Printf("\n[Discovery]\n")
		printSetting("backends", strings.Join(cfg.Discovery.Backends, ", "), "discovery.backends")
		printSetting("poll_interval", cfg.Discovery.PollInterval, "discovery.poll_interval")
		printSetting("watch_paths", strings.Join(cfg.Discovery.WatchPaths, ", "), "discovery.watch_paths")
		printSetting("capability", cfg.Discovery.Capability, "discovery.capability")
		printSetting("tokens", strings.Join(cfg.Discovery.Tokens, ", "), "discovery.tokens")
		printSetting("firewire_root", cfg.Discovery.FireWireRoot, "discovery.firewire_root")
		for i, src := range cfg.Discovery.StaticSources {
			fmt.Printf("static[%d]: %s %s -> %s\n", i, src.ID, src.Name, src.Path)
		}

		fmt.Printf("\n[Capture]\n")
		printSetting("ffmpeg", cfg.Capture.FFmpeg, "capture.ffmpeg")
		printSetting("stop_timeout", cfg.Capture.StopTimeout, "capture.stop_timeout")
		printSetting("min_file_size", cfg.Capture.MinFileSize, "capture.min_file_size")

		fmt.Printf("\n[Other]\n")
		printSetting("notifications", cfg.Notifications.IsEnabled(), "notifications.enabled")
		printSetting("server_port", cfg.Server.Port, "server.port")

		return nil
	},
}

func printSetting(name string, value interface{}, key string) {
	status := ""
	if cfg.Inheritance != nil {
		status = cfg.Inheritance.Settings[key]
	}
	fmt.Printf("%s: %v %s\n", name, value, getInheritanceIndicator(status))
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[default]"
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
