package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"stageq/internal/sample"
)

// csvHeader is the JMeter JTL column set, so the file loads straight into
// JMeter-compatible tooling.
var csvHeader = []string{
	"timeStamp", "elapsed", "label", "responseCode", "responseMessage",
	"threadName", "dataType", "success", "failureMessage", "bytes",
	"sentBytes", "grpThreads", "allThreads", "URL", "Latency", "IdleTime", "Connect",
}

// WriteCSV writes one row per sample.
func WriteCSV(w io.Writer, samples []sample.Sample, label, url string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, s := range samples {
		code := ""
		if s.StatusCode > 0 {
			code = strconv.Itoa(s.StatusCode)
		}
		bytes := s.SizeBytes
		if bytes < 0 {
			bytes = 0
		}
		record := []string{
			strconv.FormatInt(s.IssuedAt.UnixMilli(), 10),
			strconv.FormatInt(s.Duration.Milliseconds(), 10),
			label,
			code,
			responseMessage(s),
			fmt.Sprintf("%s-%d", label, s.Seq),
			"text",
			strconv.FormatBool(s.Success),
			s.Err,
			strconv.FormatInt(bytes, 10),
			"0",
			"1",
			"1",
			url,
			strconv.FormatInt(s.Duration.Milliseconds(), 10),
			strconv.FormatInt(s.QueueWait.Milliseconds(), 10),
			"0",
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func ExportCSV(samples []sample.Sample, label, url, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteCSV(f, samples, label, url); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return f.Close()
}

func responseMessage(s sample.Sample) string {
	if s.StatusCode > 0 {
		return http.StatusText(s.StatusCode)
	}
	return string(s.Reason)
}
