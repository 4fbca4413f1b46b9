package extract

import "time"

// AttributionRatio is the share of revenue assumed to come from email when
// campaign and flow conversion values cannot be measured.
const AttributionRatio = 0.30

// Dataset is the output of one extraction run. It is built once by
// ExtractAll and not modified afterwards.
type Dataset struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Range       DateRange `json:"range" yaml:"range"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	Revenue     Result[Revenue]     `json:"revenue" yaml:"revenue"`
	Campaigns   Result[Campaigns]   `json:"campaigns" yaml:"campaigns"`
	Flows       Result[Flows]       `json:"flows" yaml:"flows"`
	Lists       Result[Lists]       `json:"lists" yaml:"lists"`
	Forms       Result[Forms]       `json:"forms" yaml:"forms"`
	FlowDetails Result[FlowDetails] `json:"flow_details" yaml:"flow_details"`

	Attribution Attribution `json:"attribution" yaml:"attribution"`
}

// Payloads maps every category to its payload. Degraded categories map to
// their zero payload.
func (d Dataset) Payloads() map[Category]any {
	payloads := make(map[Category]any, len(AllCategories()))
	for _, c := range AllCategories() {
		payload, _ := d.Category(c)
		payloads[c] = payload
	}
	return payloads
}

// Category returns the payload of c and its degrade reason, if any.
func (d Dataset) Category(c Category) (any, *DegradeReason) {
	switch c {
	case CategoryRevenue:
		return d.Revenue.Payload, d.Revenue.Degraded
	case CategoryCampaigns:
		return d.Campaigns.Payload, d.Campaigns.Degraded
	case CategoryFlows:
		return d.Flows.Payload, d.Flows.Degraded
	case CategoryLists:
		return d.Lists.Payload, d.Lists.Degraded
	case CategoryForms:
		return d.Forms.Payload, d.Forms.Degraded
	case CategoryFlowDetails:
		return d.FlowDetails.Payload, d.FlowDetails.Degraded
	default:
		return nil, nil
	}
}

// Degraded returns the reason of every degraded category.
func (d Dataset) Degraded() map[Category]DegradeReason {
	degraded := make(map[Category]DegradeReason)
	for _, c := range AllCategories() {
		if _, reason := d.Category(c); reason != nil {
			degraded[c] = *reason
		}
	}
	return degraded
}

// attribute splits revenue between campaigns and flows. Measured values are
// used only when both reports succeeded; otherwise the split is estimated
// with AttributionRatio and marked as such.
func attribute(revenue Result[Revenue], campaigns Result[Campaigns], flows Result[Flows]) Attribution {
	total := revenue.Payload.Total

	if campaigns.OK() && flows.OK() {
		a := Attribution{
			Campaigns: campaigns.Payload.Totals.ConversionValue,
			Flows:     flows.Payload.Totals.ConversionValue,
		}
		a.Attributed = a.Campaigns + a.Flows
		a.Unattributed = max(total-a.Attributed, 0)
		return a
	}

	attributed := total * AttributionRatio
	return Attribution{
		Attributed:   attributed,
		Unattributed: total - attributed,
		Estimated:    true,
		Ratio:        AttributionRatio,
	}
}
