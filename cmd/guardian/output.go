package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/mcpsek/guardian/internal/model"
	"github.com/mcpsek/guardian/internal/pipeline"
)

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
	)
	return table
}

// renderResults prints a ranked result set as a table
func renderResults(w io.Writer, res *pipeline.Result) error {
	for _, se := range res.SourceErrors {
		fmt.Fprintf(w, "warning: source %s failed: %s\n", se.Source, se.Reason)
	}
	if len(res.Ranked) == 0 {
		fmt.Fprintln(w, "No servers found.")
		return nil
	}

	table := newTable(w, []string{"#", "Server", "Score", "Tier", "Sources", "Endpoint"})
	for _, r := range res.Ranked {
		if err := table.Append([]string{
			strconv.Itoa(r.Rank),
			r.Server.Name,
			strconv.Itoa(r.Score.Total),
			string(r.Score.Tier),
			strings.Join(r.Server.Sources, ","),
			r.Server.Endpoint,
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	origin := "fresh"
	if res.Cached {
		origin = "cached"
	}
	fmt.Fprintf(w, "%d of %s servers (%s)\n", len(res.Ranked), humanize.Comma(int64(res.TotalFound)), origin)
	return nil
}

// renderRuns prints run records with start times relative to now
func renderRuns(w io.Writer, records []*model.RunRecord, now time.Time) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	table := newTable(w, []string{"ID", "Status", "Query", "Max", "Results", "Started", "Took"})
	for _, r := range records {
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		if err := table.Append([]string{
			r.ID.String(),
			string(r.Status),
			r.Query,
			strconv.Itoa(r.MaxResults),
			strconv.Itoa(r.ResultCount),
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			took,
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
