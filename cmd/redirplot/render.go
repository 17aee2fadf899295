// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/discursive-image/redirplot/api"
	"github.com/spf13/cobra"
)

var renderFlags struct {
	input  string
	output string
	format string
	lang   string
	yMax   float64
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a recorded sample stream to an image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := api.LoadConfig(configPath)
		if err != nil {
			return err
		}
		opts := cfg.ChartOptions()
		if cmd.Flags().Changed("y-max") {
			opts.YMax = renderFlags.yMax
		}
		lang := cfg.Locale
		if cmd.Flags().Changed("lang") {
			lang = renderFlags.lang
		}

		format := renderFlags.format
		if format == "" {
			format = renderFlags.output
		}
		format, err = api.FormatOf(format)
		if err != nil {
			return err
		}

		logf("reading samples from %v", renderFlags.input)
		in, err := openInput(renderFlags.input)
		if err != nil {
			return err
		}
		defer in.Close()
		series, err := api.ReadSeries(in, 0)
		if err != nil {
			return err
		}

		out, err := os.Create(renderFlags.output)
		if err != nil {
			return fmt.Errorf("unable to create output: %w", err)
		}
		labels := api.LabelsFor(api.MatchLanguage(lang, ""))
		if err := api.RenderChart(out, series.Snapshot(), labels, opts, format); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("unable to write output: %w", err)
		}
		logf("%d samples rendered to %v", series.Len(), renderFlags.output)
		return nil
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderFlags.input, "input", "i", "-", "Input file path. Use - for stdin.")
	f.StringVarP(&renderFlags.output, "output", "o", "redirection.png", "Output image path")
	f.StringVarP(&renderFlags.format, "format", "f", "", "Image format (png, svg, pdf, jpg), guessed from the output name when empty")
	f.StringVar(&renderFlags.lang, "lang", "en", "Chart language (en, fr)")
	f.Float64Var(&renderFlags.yMax, "y-max", 180, "Upper bound of the cumulative chart in degrees, 0 to autoscale")
}
