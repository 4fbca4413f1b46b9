package extract

import "time"

// Point is one bucket of a time series.
type Point struct {
	Time  time.Time `json:"time" yaml:"time"`
	Value float64   `json:"value" yaml:"value"`
}

// Series is a metric aggregate over time. Values holds one slice of points
// per measurement.
type Series struct {
	Metric   string             `json:"metric" yaml:"metric"`
	MetricID string             `json:"metric_id" yaml:"metric_id"`
	Interval string             `json:"interval" yaml:"interval"`
	Values   map[string][]Point `json:"values" yaml:"values"`
}

// Total sums the points of measurement.
func (s Series) Total(measurement string) float64 {
	var total float64
	for _, p := range s.Values[measurement] {
		total += p.Value
	}
	return total
}

// Revenue is the "Placed Order" summary for the range.
type Revenue struct {
	MetricID          string  `json:"metric_id" yaml:"metric_id"`
	Total             float64 `json:"total" yaml:"total"`
	Orders            int     `json:"orders" yaml:"orders"`
	AverageOrderValue float64 `json:"average_order_value" yaml:"average_order_value"`
	Daily             []Point `json:"daily" yaml:"daily"`
}

// Attribution splits revenue between campaigns and flows. When Estimated is
// set the figures are not measured: Attributed is Total * Ratio and the
// per-channel split is unknown.
type Attribution struct {
	Campaigns    float64 `json:"campaigns" yaml:"campaigns"`
	Flows        float64 `json:"flows" yaml:"flows"`
	Attributed   float64 `json:"attributed" yaml:"attributed"`
	Unattributed float64 `json:"unattributed" yaml:"unattributed"`
	Estimated    bool    `json:"estimated" yaml:"estimated"`
	Ratio        float64 `json:"ratio,omitempty" yaml:"ratio,omitempty"`
}

// EntityStats are the values-report statistics of one campaign or flow.
// Rates are fractions, recomputed from the summed counts.
type EntityStats struct {
	Recipients      float64 `json:"recipients" yaml:"recipients"`
	Delivered       float64 `json:"delivered" yaml:"delivered"`
	OpensUnique     float64 `json:"opens_unique" yaml:"opens_unique"`
	ClicksUnique    float64 `json:"clicks_unique" yaml:"clicks_unique"`
	Conversions     float64 `json:"conversions" yaml:"conversions"`
	ConversionValue float64 `json:"conversion_value" yaml:"conversion_value"`
	Unsubscribes    float64 `json:"unsubscribes" yaml:"unsubscribes"`
	OpenRate        float64 `json:"open_rate" yaml:"open_rate"`
	ClickRate       float64 `json:"click_rate" yaml:"click_rate"`
}

// Add accumulates the counts of other. Rates are left for Finish.
func (s *EntityStats) Add(other EntityStats) {
	s.Recipients += other.Recipients
	s.Delivered += other.Delivered
	s.OpensUnique += other.OpensUnique
	s.ClicksUnique += other.ClicksUnique
	s.Conversions += other.Conversions
	s.ConversionValue += other.ConversionValue
	s.Unsubscribes += other.Unsubscribes
}

// Finish recomputes the rates from the counts. Delivered is the denominator,
// falling back to recipients when the report has no delivery count.
func (s *EntityStats) Finish() {
	base := s.Delivered
	if base == 0 {
		base = s.Recipients
	}
	s.OpenRate = ratio(s.OpensUnique, base)
	s.ClickRate = ratio(s.ClicksUnique, base)
}

// Campaign is one sent email campaign.
type Campaign struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	SendTime *time.Time  `json:"send_time,omitempty" yaml:"send_time,omitempty"`
	Stats    EntityStats `json:"stats" yaml:"stats"`
}

// Campaigns is the campaign category payload.
type Campaigns struct {
	Items  []Campaign  `json:"items" yaml:"items"`
	Totals EntityStats `json:"totals" yaml:"totals"`
}

// Flow is one automation flow.
type Flow struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Status      string      `json:"status" yaml:"status"`
	TriggerType string      `json:"trigger_type,omitempty" yaml:"trigger_type,omitempty"`
	Stats       EntityStats `json:"stats" yaml:"stats"`
}

// Flows is the flow category payload.
type Flows struct {
	Items  []Flow      `json:"items" yaml:"items"`
	Totals EntityStats `json:"totals" yaml:"totals"`
}

// List is one subscriber list. ProfileCount is -1 when the size was not
// returned.
type List struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	ProfileCount int    `json:"profile_count" yaml:"profile_count"`
}

// Lists is the list-growth payload.
type Lists struct {
	Items        []List `json:"items" yaml:"items"`
	Subscribed   int    `json:"subscribed" yaml:"subscribed"`
	Unsubscribed int    `json:"unsubscribed" yaml:"unsubscribed"`
	NetGrowth    int    `json:"net_growth" yaml:"net_growth"`
}

// Form is one sign-up form.
type Form struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Status     string  `json:"status" yaml:"status"`
	Views      float64 `json:"views" yaml:"views"`
	Submits    float64 `json:"submits" yaml:"submits"`
	SubmitRate float64 `json:"submit_rate" yaml:"submit_rate"`
}

// Forms is the form-performance payload.
type Forms struct {
	Items      []Form  `json:"items" yaml:"items"`
	Views      float64 `json:"views" yaml:"views"`
	Submits    float64 `json:"submits" yaml:"submits"`
	SubmitRate float64 `json:"submit_rate" yaml:"submit_rate"`
}

// FlowDetail is the daily performance of one flow.
type FlowDetail struct {
	FlowID          string  `json:"flow_id" yaml:"flow_id"`
	Name            string  `json:"name" yaml:"name"`
	ConversionValue []Point `json:"conversion_value" yaml:"conversion_value"`
	Recipients      []Point `json:"recipients" yaml:"recipients"`
}

// FlowDetails holds deep-dives of the top flows by conversion value.
type FlowDetails struct {
	Items []FlowDetail `json:"items" yaml:"items"`
}

func ratio(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}
