package main

import (
	"fmt"
	"io"

	"github.com/boyarskiy/flakeboard/internal/logging"
	"github.com/boyarskiy/flakeboard/internal/model"
	"github.com/boyarskiy/flakeboard/internal/report"
)

// writeReports writes the site, then the secondary reports. Only a failure
// to write the site aborts the invocation.
func writeReports(outDir string, rpt *model.Report, jsonOutput bool, stdout io.Writer) error {
	log := logging.New("report")

	if err := report.WriteSite(outDir, rpt); err != nil {
		return err
	}
	log.Info("wrote site", "dir", outDir)

	if err := report.WriteJSON(outDir, rpt); err != nil {
		log.Warn("failed to write JSON report", "error", err)
	}
	if err := report.WriteMarkdown(outDir, rpt); err != nil {
		log.Warn("failed to write Markdown report", "error", err)
	}

	if jsonOutput {
		data, err := report.MarshalJSON(rpt)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	termCfg := report.DefaultTerminalConfig(stdout)
	if err := report.RenderTerminal(termCfg, rpt, outDir); err != nil {
		log.Warn("failed to render terminal output", "error", err)
	}
	return nil
}
