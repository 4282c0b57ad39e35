package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// csvBuffer wraps encoding/csv.Writer over an in-memory buffer.
type csvBuffer struct {
	buf    *bytes.Buffer
	writer *csv.Writer
}

func newCSVBuffer(headers []string) (*csvBuffer, error) {
	buf := &bytes.Buffer{}
	c := &csvBuffer{buf: buf, writer: csv.NewWriter(buf)}
	if err := c.writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	return c, nil
}

func (c *csvBuffer) row(fields ...string) error {
	if err := c.writer.Write(fields); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

func (c *csvBuffer) reader() (io.Reader, error) {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return c.buf, nil
}
