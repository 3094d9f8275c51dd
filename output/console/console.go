// Package console prints calibrated readings to a writer, one line per
// reading.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/strainrig/gauged/output"
)

type ConsoleOutput struct {
	w io.Writer
}

func New() *ConsoleOutput {
	return &ConsoleOutput{w: os.Stdout}
}

// NewWriter is used by tests to capture the output.
func NewWriter(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w}
}

func (c *ConsoleOutput) Publish(r output.Reading) error {
	var b strings.Builder
	b.WriteString(r.Timestamp.Format(time.RFC3339))
	for ch, v := range r.Values {
		fmt.Fprintf(&b, " ch%d=%.2f", ch, v)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(c.w, b.String())
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
