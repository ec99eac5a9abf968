package export

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVWriter streams rows as RFC 4180 CSV.
type CSVWriter struct {
	w             *csv.Writer
	headerWritten bool
}

// NewCSVWriter creates a writer. The header is emitted before the first
// row, or on Close when no rows were written.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

func (c *CSVWriter) writeHeader() error {
	if c.headerWritten {
		return nil
	}
	c.headerWritten = true
	return c.w.Write(Header)
}

// WriteRow implements RowWriter.
func (c *CSVWriter) WriteRow(row Row) error {
	if err := c.writeHeader(); err != nil {
		return err
	}
	return c.w.Write([]string{
		strconv.FormatInt(row.ID, 10),
		formatInt(row.ActorID),
		row.Action,
		formatString(row.Entity),
		formatInt(row.EntityID),
		formatString(row.Description),
		formatString(row.SourceAddress),
		row.CreatedAt.UTC().Format(CSVTimeLayout),
	})
}

// Close implements RowWriter.
func (c *CSVWriter) Close() error {
	if err := c.writeHeader(); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}
