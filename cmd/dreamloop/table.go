package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. maxWidth of zero leaves it unbounded.
type column struct {
	title    string
	align    text.Align
	maxWidth int
}

var (
	historyColumns = []column{
		{title: "Recorded"},
		{title: "Item", maxWidth: 40},
		{title: "Status"},
		{title: "Duration", align: text.AlignRight},
		{title: "Error", maxWidth: 60},
	}
	checkColumns = []column{
		{title: "Check"},
		{title: "Result"},
		{title: "Detail", maxWidth: 80},
	}
)

// renderTable draws rows under columns. Short rows are padded and extra
// cells dropped so every row matches the header.
func renderTable(columns []column, rows [][]string, colorize bool) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if colorize {
		tw.Style().Color.Header = text.Colors{text.Bold, text.FgHiBlue}
	}

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: c.align, AlignHeader: text.AlignLeft}
		if c.maxWidth > 0 {
			configs[i].WidthMax = c.maxWidth
			configs[i].WidthMaxEnforcer = text.WrapSoft
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, cells := range rows {
		row := make(table.Row, len(columns))
		for i := range row {
			row[i] = ""
			if i < len(cells) {
				row[i] = cells[i]
			}
		}
		tw.AppendRow(row)
	}
	return tw.Render()
}
