package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZacxDev/clipnship/internal/metrics"
	"github.com/ZacxDev/clipnship/internal/server"
	"github.com/ZacxDev/clipnship/pkg/clipconverter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve preview, layer and render controls over HTTP",
	Long: `Open the source and expose it over HTTP:

  GET    /preview.png?width=50%       current composite
  GET    /layers                      layer stack
  POST   /layers                      {"name":"bg","scale":1.5,"filter":"blur(20px)"}
  PATCH  /layers/{name}               {"scale":1} and/or {"filter":"sepia(1)"}
  DELETE /layers/{name}
  GET    /playback                    state and position
  POST   /playback/{play,pause,reset}
  POST   /playback/seek?t=12.5
  POST   /renders?fps=30              start a render
  GET    /renders/{id}                progress
  GET    /renders/{id}/output         finished clip
  GET    /metrics                     Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		layerValues, _ := cmd.Flags().GetStringArray("layer")

		cfg := *state.cfg
		if bind, _ := cmd.Flags().GetString("bind"); bind != "" {
			cfg.Server.Bind = bind
		}

		met := metrics.New()
		conv, err := clipconverter.New(input,
			clipconverter.WithConfig(&cfg),
			clipconverter.WithLogger(state.logger),
			clipconverter.WithMetrics(met),
		)
		if err != nil {
			return err
		}
		defer conv.Close()

		if _, err := addLayers(conv, layerValues); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.Serve(ctx, cfg.Server.Bind, server.NewHandler(conv, state.logger, met), state.logger)
	},
}

func init() {
	serveCmd.Flags().StringP("input", "i", "", "Source video")
	serveCmd.Flags().String("bind", "", "Listen address (default from config)")
	serveCmd.Flags().StringArrayP("layer", "l", nil, "Initial layer as name:scale[:filter]; repeatable")

	serveCmd.MarkFlagRequired("input")
}
