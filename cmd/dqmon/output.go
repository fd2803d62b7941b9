package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/dqmon/internal/model"
	"github.com/nao1215/dqmon/internal/report"
)

// addOutputFlags registers the report format flags shared by commands.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", report.FormatText,
		"Report format: text, json or markdown")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-color", false, "Disable colored text output")
}

// outputOptions are the values of the flags added by addOutputFlags.
type outputOptions struct {
	format  string
	path    string
	noColor bool
}

func getOutputOptions(cmd *cobra.Command) (outputOptions, error) {
	var (
		o   outputOptions
		err error
	)
	if o.format, err = cmd.Flags().GetString("format"); err != nil {
		return o, err
	}
	if o.path, err = cmd.Flags().GetString("output"); err != nil {
		return o, err
	}
	if o.noColor, err = cmd.Flags().GetBool("no-color"); err != nil {
		return o, err
	}
	return o, nil
}

// writeReport renders rep in the requested format to the output file or,
// when none is given, to the command's stdout.
func writeReport(cmd *cobra.Command, rep *model.RunReport, o outputOptions) error {
	var out io.Writer = cmd.OutOrStdout()
	color := false

	if o.path != "" {
		dir := filepath.Dir(o.path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports quote cell values of flagged rows, so only the owner may read them.
		f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	} else if f, ok := out.(*os.File); ok && !o.noColor {
		color = isTerminal(f)
	}

	w, err := report.NewWriter(o.format, out, getVersion(), color)
	if err != nil {
		return err
	}
	_, err = w.Write(rep)
	return err
}
