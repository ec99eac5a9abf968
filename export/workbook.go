package export

import (
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the exported rows.
const SheetName = "Audit Logs"

// WorkbookWriter streams rows into an xlsx worksheet and writes the file to
// the underlying writer on Close.
type WorkbookWriter struct {
	out    io.Writer
	file   *excelize.File
	stream *excelize.StreamWriter
	next   int
}

// NewWorkbookWriter prepares a workbook with the header row in place.
func NewWorkbookWriter(out io.Writer) (*WorkbookWriter, error) {
	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", SheetName); err != nil {
		file.Close()
		return nil, err
	}

	stream, err := file.NewStreamWriter(SheetName)
	if err != nil {
		file.Close()
		return nil, err
	}

	ww := &WorkbookWriter{
		out:    out,
		file:   file,
		stream: stream,
		next:   1,
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := ww.setRow(header); err != nil {
		file.Close()
		return nil, err
	}
	return ww, nil
}

func (ww *WorkbookWriter) setRow(values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, ww.next)
	if err != nil {
		return err
	}
	if err := ww.stream.SetRow(cell, values); err != nil {
		return err
	}
	ww.next++
	return nil
}

// WriteRow implements RowWriter.
func (ww *WorkbookWriter) WriteRow(row Row) error {
	return ww.setRow([]any{
		row.ID,
		nullableInt(row.ActorID),
		row.Action,
		formatString(row.Entity),
		nullableInt(row.EntityID),
		formatString(row.Description),
		formatString(row.SourceAddress),
		row.CreatedAt.UTC().Format(WorkbookTimeLayout),
	})
}

// Close flushes the sheet and writes the workbook.
func (ww *WorkbookWriter) Close() error {
	defer ww.file.Close()

	if err := ww.stream.Flush(); err != nil {
		return err
	}
	_, err := ww.file.WriteTo(ww.out)
	return err
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Discard releases the workbook without writing it.
func (ww *WorkbookWriter) Discard() error {
	return ww.file.Close()
}
