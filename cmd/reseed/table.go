package main

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jkaberg/reseed/reseed"
)

func printSummary(w io.Writer, s reseed.Summary) {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Import summary")
	tw.AppendHeader(table.Row{"Outcome", "Files"})
	tw.AppendRows([]table.Row{
		{reseed.Added.String(), strconv.Itoa(s.Added)},
		{reseed.Skipped.String(), strconv.Itoa(s.Skipped)},
		{reseed.Errored.String(), strconv.Itoa(s.Errored)},
	})
	tw.AppendFooter(table.Row{"total", strconv.Itoa(s.Total)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})

	fmt.Fprintln(w, tw.Render())
}

func printCategories(w io.Writer, remoteBase, localBase string, cats []string) {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Category", "Remote", "Save path"})
	for i, c := range cats {
		tw.AppendRow(table.Row{i + 1, c, path.Join(remoteBase, c), filepath.Join(localBase, c)})
	}

	fmt.Fprintln(w, tw.Render())
}
