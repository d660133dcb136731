package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ZacxDev/clipnship/internal/ffmpeg"
	"github.com/ZacxDev/clipnship/internal/platform"
	"github.com/ZacxDev/clipnship/pkg/clipconverter"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the layer stack to a WebM clip",
	Long: fmt.Sprintf(`Play the source from the start, composite every frame through the layer
stack and encode the canvas plus the source audio. Rendering runs in real time.

Layers are given bottom first as name:scale[:filter]. scale is a number, cover
or fit; filter is a CSS filter list such as "blur(20px) grayscale(50%%)".
Without --layer the stack is %q.

Supported profiles:
%s`, defaultLayers, formatSupportedProfiles()),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		layerValues, _ := cmd.Flags().GetStringArray("layer")
		fps, _ := cmd.Flags().GetInt("fps")

		cfg := *state.cfg
		if output == "" {
			output = cfg.Render.Output
		}
		profile, err := platform.Get(cfg.Render.Profile)
		if err != nil {
			return err
		}
		output = ffmpeg.EnsureExtension(output, ffmpeg.GetCodecSettings(profile.GetOutputFormat()).FileExtension)

		conv, err := clipconverter.New(input, clipconverter.WithConfig(&cfg), clipconverter.WithLogger(state.logger))
		if err != nil {
			return err
		}
		defer conv.Close()

		layers, err := addLayers(conv, layerValues)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), layersTable(layers))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bar := newProgressBar()
		job, err := conv.Render(fps, func(*clipconverter.Output) {}, func(p float64) {
			if bar != nil {
				_ = bar.Set(int(p * 100))
			}
		})
		if err != nil {
			return err
		}
		state.logger.Info("rendering",
			slog.String("input", input),
			slog.Duration("duration", conv.Duration()),
			slog.String("render_id", job.ID()),
		)

		out, err := job.Wait(ctx)
		if bar != nil {
			_ = bar.Finish()
		}
		if out == nil {
			if err == nil {
				err = errors.New("render produced no output")
			}
			return errors.Wrap(err, "render failed")
		}
		if err != nil {
			state.logger.Warn("encoder reported an error; output may be truncated", slog.String("error", err.Error()))
		}

		if err := os.WriteFile(output, out.Data, 0o644); err != nil {
			return errors.Wrap(err, "failed to write output")
		}
		fmt.Fprintln(cmd.OutOrStdout(), outputSummary(output, out))
		return nil
	},
}

// newProgressBar returns nil when stderr is not a terminal.
func newProgressBar() *progressbar.ProgressBar {
	fd := os.Stderr.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("rendering"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func init() {
	renderCmd.Flags().StringP("input", "i", "", "Source video")
	renderCmd.Flags().StringP("output", "o", "", "Output file (default from config, clipnship.webm)")
	renderCmd.Flags().StringArrayP("layer", "l", nil, "Layer as name:scale[:filter], bottom first; repeatable")
	renderCmd.Flags().Int("fps", 0, "Capture frame rate (default from config)")

	renderCmd.MarkFlagRequired("input")
}
