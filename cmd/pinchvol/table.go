package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ayusman/pinchvol/internal/plugin"
	"github.com/ayusman/pinchvol/internal/store"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

var (
	sessionHeaders = []string{"Started", "Duration", "Actuator", "Range", "Frames", "Hands", "Actuations", "Errors", "Exit"}
	sessionAligns  = []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
	pluginHeaders  = []string{"Name", "Version", "Actions", "Usable", "Path"}
)

func sessionRows(sessions []*store.Session) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		exit := string(s.ExitReason)
		if exit == "" {
			exit = "running"
		}
		if s.Error != "" {
			exit += ": " + s.Error
		}
		rows = append(rows, []string{
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Duration().Round(time.Second).String(),
			s.Actuator,
			fmt.Sprintf("%g..%g", s.RangeMin, s.RangeMax),
			fmt.Sprint(s.Frames),
			fmt.Sprint(s.HandsSeen),
			fmt.Sprint(s.Actuations),
			fmt.Sprint(s.ActuationErrors + s.AcquisitionFailures),
			exit,
		})
	}
	return rows
}

func pluginRows(plugins []*plugin.Plugin) [][]string {
	rows := make([][]string, 0, len(plugins))
	for _, p := range plugins {
		usable := "no"
		if p.Supports(plugin.ActionRange) && p.Supports(plugin.ActionSetLevel) {
			usable = "yes"
		}
		rows = append(rows, []string{
			p.Manifest.Name,
			p.Manifest.Version,
			strings.Join(p.Manifest.Actions, ", "),
			usable,
			p.Path,
		})
	}
	return rows
}
