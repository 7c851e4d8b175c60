package report

import (
	"encoding/json"
	"io"
	"os"

	"stageq/internal/runner"
)

func WriteJSON(w io.Writer, rep *runner.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// ExportJSON writes the report as indented JSON.
func ExportJSON(rep *runner.Report, filename string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
