package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boyarskiy/flakeboard/internal/model"
)

// WriteJSON writes the report as JSON to the specified output directory.
// The file is written to <outDir>/report.json
func WriteJSON(outDir string, report *model.Report) error {
	data, err := MarshalJSON(report)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	path := filepath.Join(outDir, "report.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}

	return nil
}

// MarshalJSON returns the report as a JSON byte slice.
func MarshalJSON(report *model.Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("report is required")
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}
