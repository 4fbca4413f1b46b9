package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/klaviyo-extractor/pkg/extract"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
	formatTable outputFormat = "table"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case formatJSON, formatYAML, formatTable:
		return f, nil
	case "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want json, yaml or table)", s)
	}
}

func render(w io.Writer, format outputFormat, ds extract.Dataset) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(ds); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case formatTable:
		renderTable(w, ds)
		return nil
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ds); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

func renderTable(w io.Writer, ds extract.Dataset) {
	fmt.Fprintf(w, "Run %s (%s)\n", ds.RunID, ds.Range)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Category", "Status", "Summary"})

	for _, c := range extract.AllCategories() {
		_, reason := ds.Category(c)
		if reason != nil {
			t.AppendRow(table.Row{c.String(), text.FgYellow.Sprint("degraded"), reason.String()})
			continue
		}
		t.AppendRow(table.Row{c.String(), "ok", summary(ds, c)})
	}

	t.AppendSeparator()
	t.AppendRow(table.Row{"attribution", attributionStatus(ds.Attribution), attributionSummary(ds.Attribution)})
	t.Render()
}

func summary(ds extract.Dataset, c extract.Category) string {
	switch c {
	case extract.CategoryRevenue:
		r := ds.Revenue.Payload
		return fmt.Sprintf("%.2f from %d orders (avg %.2f)", r.Total, r.Orders, r.AverageOrderValue)
	case extract.CategoryCampaigns:
		p := ds.Campaigns.Payload
		return fmt.Sprintf("%d campaigns, %.2f conversion value, open %.1f%%, click %.1f%%",
			len(p.Items), p.Totals.ConversionValue, p.Totals.OpenRate*100, p.Totals.ClickRate*100)
	case extract.CategoryFlows:
		p := ds.Flows.Payload
		return fmt.Sprintf("%d flows, %.2f conversion value, open %.1f%%, click %.1f%%",
			len(p.Items), p.Totals.ConversionValue, p.Totals.OpenRate*100, p.Totals.ClickRate*100)
	case extract.CategoryLists:
		p := ds.Lists.Payload
		return fmt.Sprintf("%d lists, +%d / -%d (net %d)", len(p.Items), p.Subscribed, p.Unsubscribed, p.NetGrowth)
	case extract.CategoryForms:
		p := ds.Forms.Payload
		return fmt.Sprintf("%d forms, %.0f views, %.0f submits (%.1f%%)", len(p.Items), p.Views, p.Submits, p.SubmitRate*100)
	case extract.CategoryFlowDetails:
		names := make([]string, 0, len(ds.FlowDetails.Payload.Items))
		for _, d := range ds.FlowDetails.Payload.Items {
			names = append(names, d.Name)
		}
		if len(names) == 0 {
			return "no flows"
		}
		return strings.Join(names, ", ")
	default:
		return ""
	}
}

func attributionStatus(a extract.Attribution) string {
	if a.Estimated {
		return "estimated"
	}
	return "measured"
}

func attributionSummary(a extract.Attribution) string {
	if a.Estimated {
		return fmt.Sprintf("%.2f attributed at %.0f%% of revenue (estimate), %.2f other", a.Attributed, a.Ratio*100, a.Unattributed)
	}
	return fmt.Sprintf("campaigns %.2f, flows %.2f, %.2f other", a.Campaigns, a.Flows, a.Unattributed)
}
