package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZacxDev/clipnship/internal/config"
	"github.com/ZacxDev/clipnship/internal/logging"
	"github.com/ZacxDev/clipnship/internal/platform"
)

// app carries what PersistentPreRunE resolves for every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

var (
	state = &app{}

	rootCmd = &cobra.Command{
		Use:   "clipnship",
		Short: "Composite a landscape video into a portrait clip",
		Long: `clipnship stacks scaled, filtered copies of one source video on a 1080x1920
canvas and records the result, with the source audio, as WebM (VP9 + Opus).

Examples:
  # Blurred full-height background with the video fitted on top
  clipnship render -i input.mp4 -o clip.webm

  # Custom stack, bottom layer first
  clipnship render -i input.mp4 --layer "bg:cover:blur(20px) brightness(60%)" --layer "main:0.6"

  # Check the composite at 12 seconds
  clipnship preview -i input.mp4 --at 12s -o frame.png`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load(cmd)
		},
	}

	profilesCmd = &cobra.Command{
		Use:   "profiles",
		Short: "List output profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), profilesTable())
			return nil
		},
	}

	filtersCmd = &cobra.Command{
		Use:   "filters",
		Short: "List named filters usable as url(#name)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), filtersTable())
			return nil
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := config.Encode(*state.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
)

func (a *app) load(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	return nil
}

func formatSupportedProfiles() string {
	var sb strings.Builder
	for _, name := range platform.GetSupportedProfiles() {
		sb.WriteString(fmt.Sprintf("- %s\n", name))
	}
	return sb.String()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "TOML config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(filtersCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
