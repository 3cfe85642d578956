package output

import (
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"gym-session/internal/domain"
)

// Table is a borderless left-aligned table.
type Table struct {
	table  *tablewriter.Table
	header []string
	rows   [][]string
}

// NewTable creates a table writing to w.
func NewTable(w io.Writer, headers ...string) *Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	return &Table{table: table, header: headers}
}

// AddRow adds a row.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render writes the table.
func (t *Table) Render() error {
	if len(t.header) > 0 {
		t.table.Header(t.header)
	}
	if err := t.table.Bulk(t.rows); err != nil {
		return err
	}
	return t.table.Render()
}

// RenderAuthState writes the state as a field/value table.
func (p *Printer) RenderAuthState(s domain.AuthState) error {
	t := NewTable(p.out, "Field", "Value")
	t.AddRow("status", p.StatusBadge(s.Status))
	if s.Loading {
		t.AddRow("loading", "yes")
	}
	if u := s.User; u != nil {
		t.AddRow("user id", u.UserID)
		t.AddRow("username", u.Username)
		t.AddRow("display name", u.DisplayName)
		if !u.CreatedAt.IsZero() {
			t.AddRow("member since", u.CreatedAt.Format(time.DateOnly))
		}
	} else if s.Status == domain.StatusAuthenticated {
		t.AddRow("profile", p.Dim("not set up"))
	}
	return t.Render()
}
