package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/starford/florae/internal/models"
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

func plantRows(plants []models.StoredPlantRecord) [][]string {
	rows := make([][]string, 0, len(plants))
	for _, p := range plants {
		watering := "-"
		if p.WateringFrequencyDays != nil {
			watering = fmt.Sprintf("%d d", *p.WateringFrequencyDays)
		}
		reminder := "off"
		if p.HasReminder() {
			reminder = "on"
		}
		created := "-"
		if !p.CreatedAt.IsZero() {
			created = humanize.Time(p.CreatedAt)
		}
		rows = append(rows, []string{
			p.ID,
			p.ScientificName,
			p.CommonName,
			p.Location.City,
			watering,
			reminder,
			created,
		})
	}
	return rows
}

func renderPlants(plants []models.StoredPlantRecord) string {
	headers := []string{"ID", "Scientific name", "Common name", "City", "Watering", "Reminder", "Saved"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
	return renderTable(headers, plantRows(plants), aligns)
}
