package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ZacxDev/clipnship/internal/filter"
	"github.com/ZacxDev/clipnship/internal/platform"
	"github.com/ZacxDev/clipnship/pkg/clipconverter"
)

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func profilesTable() string {
	tw := newTable("Profile", "Video", "Audio", "Bitrate", "Max size", "MIME type")
	for _, name := range platform.GetSupportedProfiles() {
		p, err := platform.Get(name)
		if err != nil {
			continue
		}
		w, h := p.GetMaxDimensions()
		tw.AppendRow(table.Row{
			p.GetName(),
			p.GetVideoCodec(),
			p.GetAudioCodec(),
			p.GetVideoBitrate() + " / " + p.GetAudioBitrate(),
			fmt.Sprintf("%dx%d", w, h),
			p.GetMimeType(),
		})
	}
	return tw.Render()
}

func filtersTable() string {
	names := filter.Registered()
	sort.Strings(names)
	tw := newTable("Name", "Usage")
	for _, name := range names {
		tw.AppendRow(table.Row{name, "url(#" + name + ")"})
	}
	return tw.Render()
}

func layersTable(layers []clipconverter.Layer) string {
	tw := newTable("#", "Layer", "Scale", "Filter")
	for i, l := range layers {
		tw.AppendRow(table.Row{i + 1, l.Name, fmt.Sprintf("%.3f", l.Scale), l.Filter.String()})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return tw.Render()
}

func outputSummary(path string, out *clipconverter.Output) string {
	return fmt.Sprintf("wrote %s (%s, %s)", path, humanize.Bytes(uint64(out.Size())), out.MimeType)
}
