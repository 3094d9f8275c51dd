// Package csvfile appends calibrated readings to an append-only CSV
// file, one row per reading: timestamp followed by the calibrated
// value of every channel in channel order.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/strainrig/gauged/output"
)

type CSVOutput struct {
	file   *os.File
	writer *csv.Writer
}

// New opens (or creates) the file for appending.
func New(path string) (*CSVOutput, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file %s: %w", path, err)
	}
	return &CSVOutput{file: f, writer: csv.NewWriter(f)}, nil
}

func (c *CSVOutput) Publish(r output.Reading) error {
	record := make([]string, 0, len(r.Values)+1)
	record = append(record, r.Timestamp.Format(time.RFC3339Nano))
	for _, v := range r.Values {
		record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
	}
	if err := c.writer.Write(record); err != nil {
		return err
	}
	c.writer.Flush()
	return c.writer.Error()
}

func (c *CSVOutput) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
