// Package export serializes audit events into tabular formats.
package export

import (
	"strconv"
	"time"
)

// Header is the fixed column order shared by every format.
var Header = []string{
	"ID",
	"User ID",
	"Action",
	"Entity",
	"Entity ID",
	"Description",
	"IP Address",
	"Created At",
}

const (
	// CSVTimeLayout is used for the Created At column in CSV output.
	CSVTimeLayout = "2006-01-02 15:04:05"
	// WorkbookTimeLayout is used for the Created At column in workbooks.
	WorkbookTimeLayout = "2006-01-02 15:04"
)

// Row is one audit event flattened for export. Nil fields render empty.
type Row struct {
	ID            int64
	ActorID       *int64
	Action        string
	Entity        *string
	EntityID      *int64
	Description   *string
	SourceAddress *string
	CreatedAt     time.Time
}

// RowWriter receives rows in order. Close flushes the output.
type RowWriter interface {
	WriteRow(row Row) error
	Close() error
}

// Format names an export encoding.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatWorkbook Format = "xlsx"
)

// ContentType returns the media type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatWorkbook:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Filename returns the download file name for the format.
func (f Format) Filename() string {
	return "audit_logs." + string(f)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
