package api

import (
	"encoding/json"
	"errors"
	"time"
)

// ReportKind selects a values or series report endpoint.
type ReportKind string

const (
	CampaignValues ReportKind = "campaign-values-report"
	FlowValues     ReportKind = "flow-values-report"
	FormValues     ReportKind = "form-values-report"
	FlowSeries     ReportKind = "flow-series-report"
)

// Path returns the endpoint path, e.g. "/campaign-values-reports/".
func (k ReportKind) Path() string {
	return "/" + string(k) + "s/"
}

// IDField returns the grouping field that identifies an entity in the report.
func (k ReportKind) IDField() string {
	switch k {
	case CampaignValues:
		return "campaign_id"
	case FormValues:
		return "form_id"
	default:
		return "flow_id"
	}
}

// Campaign and flow report statistics.
const (
	StatRecipients      = "recipients"
	StatDelivered       = "delivered"
	StatOpensUnique     = "opens_unique"
	StatClicksUnique    = "clicks_unique"
	StatConversions     = "conversions"
	StatConversionValue = "conversion_value"
	StatOpenRate        = "open_rate"
	StatClickRate       = "click_rate"
	StatUnsubscribes    = "unsubscribes"
)

// Form report statistics.
const (
	StatViewedForm = "viewed_form"
	StatSubmits    = "submits"
	StatSubmitRate = "submit_rate"
)

// Timeframe is an explicit report window.
type Timeframe struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewTimeframe renders [start, end] for a report body.
func NewTimeframe(start, end time.Time) Timeframe {
	return Timeframe{Start: Datetime(start), End: Datetime(end)}
}

// ReportQuery describes a POST to a values or series report endpoint.
type ReportQuery struct {
	Kind               ReportKind
	Statistics         []string
	Start              time.Time
	End                time.Time
	ConversionMetricID string
	Filter             Filter

	// Interval applies to series reports only ("daily", "weekly", ...).
	Interval string
}

type reportAttributes struct {
	Statistics         []string  `json:"statistics"`
	Timeframe          Timeframe `json:"timeframe"`
	Interval           string    `json:"interval,omitempty"`
	ConversionMetricID string    `json:"conversion_metric_id,omitempty"`
	Filter             string    `json:"filter,omitempty"`
}

// Validate checks the query before it is sent.
func (q ReportQuery) Validate() error {
	if q.Kind == "" {
		return errors.New("report kind is required")
	}
	if len(q.Statistics) == 0 {
		return errors.New("at least one statistic is required")
	}
	if q.Kind != FormValues && q.ConversionMetricID == "" {
		return errors.New("conversion metric id is required")
	}
	if q.Kind == FlowSeries && q.Interval == "" {
		return errors.New("series reports need an interval")
	}
	if q.End.Before(q.Start) {
		return errors.New("end is before start")
	}
	return nil
}

// Body renders the request body.
func (q ReportQuery) Body() RequestBody[any] {
	attrs := reportAttributes{
		Statistics: q.Statistics,
		Timeframe:  NewTimeframe(q.Start, q.End),
		Filter:     q.Filter.String(),
	}
	if q.Kind != FormValues {
		attrs.ConversionMetricID = q.ConversionMetricID
	}
	if q.Kind == FlowSeries {
		attrs.Interval = q.Interval
	}
	return newRequestBody[any](string(q.Kind), attrs)
}

// ReportResult is one row of a values report. Rows are per message (or form
// version), so an entity may appear more than once.
type ReportResult struct {
	Groupings  map[string]string `json:"groupings"`
	Statistics Statistics        `json:"statistics"`
}

// ValuesReportDocument is the response of a values report.
type ValuesReportDocument struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Results []ReportResult `json:"results"`
		} `json:"attributes"`
	} `json:"data"`
}

// Results returns the report rows.
func (d *ValuesReportDocument) Results() []ReportResult {
	return d.Data.Attributes.Results
}

// SeriesResult is one row of a series report; every statistic is a list with
// one value per date.
type SeriesResult struct {
	Groupings  map[string]string            `json:"groupings"`
	Statistics map[string][]json.RawMessage `json:"statistics"`
}

// SeriesReportDocument is the response of a series report.
type SeriesReportDocument struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			DateTimes []time.Time    `json:"date_times"`
			Results   []SeriesResult `json:"results"`
		} `json:"attributes"`
	} `json:"data"`
}

// Series sums statistic across rows, one value per date.
func (d *SeriesReportDocument) Series(statistic string) (values []float64, malformed int) {
	return d.sum(statistic, func(map[string]string) bool { return true })
}

// SeriesFor is Series restricted to rows whose grouping field equals value,
// e.g. the rows of one flow in a multi-flow report.
func (d *SeriesReportDocument) SeriesFor(statistic, field, value string) (values []float64, malformed int) {
	return d.sum(statistic, func(groupings map[string]string) bool {
		return groupings[field] == value
	})
}

// DateTimes returns the bucket start times.
func (d *SeriesReportDocument) DateTimes() []time.Time {
	return d.Data.Attributes.DateTimes
}

func (d *SeriesReportDocument) sum(statistic string, match func(map[string]string) bool) (values []float64, malformed int) {
	values = make([]float64, len(d.Data.Attributes.DateTimes))
	for _, row := range d.Data.Attributes.Results {
		if !match(row.Groupings) {
			continue
		}
		for i, raw := range row.Statistics[statistic] {
			if i >= len(values) {
				values = append(values, 0)
			}
			n, err := Number(raw)
			if err != nil {
				malformed++
				continue
			}
			values[i] += n
		}
	}
	return values, malformed
}
