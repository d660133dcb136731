package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ZacxDev/clipnship/pkg/clipconverter"
)

const previewTimeout = 30 * time.Second

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Write one composited frame as PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		at, _ := cmd.Flags().GetDuration("at")
		width, _ := cmd.Flags().GetString("width")
		layerValues, _ := cmd.Flags().GetStringArray("layer")

		conv, err := clipconverter.New(input, clipconverter.WithConfig(state.cfg), clipconverter.WithLogger(state.logger))
		if err != nil {
			return err
		}
		defer conv.Close()

		if _, err := addLayers(conv, layerValues); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), previewTimeout)
		defer cancel()
		if err := conv.SeekFrame(ctx, at); err != nil {
			return errors.Wrapf(err, "failed to decode frame at %s", at)
		}

		p, err := conv.Preview(width)
		if err != nil {
			return err
		}
		f, err := os.Create(output)
		if err != nil {
			return errors.Wrap(err, "failed to create preview file")
		}
		if err := p.EncodePNG(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return errors.WithStack(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d at %s)\n", output, p.Width(), p.Height(), at)
		return nil
	},
}

func init() {
	previewCmd.Flags().StringP("input", "i", "", "Source video")
	previewCmd.Flags().StringP("output", "o", "preview.png", "PNG to write")
	previewCmd.Flags().Duration("at", 0, "Source position to show")
	previewCmd.Flags().String("width", "", "Preview width: CSS length or percentage of the canvas (default from config)")
	previewCmd.Flags().StringArrayP("layer", "l", nil, "Layer as name:scale[:filter], bottom first; repeatable")

	previewCmd.MarkFlagRequired("input")
}
