package extract

import (
	"context"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
	"github.com/Sternrassler/klaviyo-extractor/pkg/pagination"
)

// FormsPath is the sign-up form listing endpoint.
const FormsPath = "/forms/"

var formStatistics = []string{api.StatViewedForm, api.StatSubmits}

// Forms lists sign-up forms and attaches views and submissions for the range.
func (e *Extractor) Forms(ctx context.Context, r DateRange) Result[Forms] {
	return capture(ctx, e.logger, CategoryForms.String(), func(ctx context.Context) (Forms, error) {
		listed, err := pagination.CollectResources[api.FormAttributes](ctx, e.api, FormsPath, nil)
		if err != nil {
			return Forms{}, err
		}
		if len(listed) == 0 {
			return Forms{Items: []Form{}}, nil
		}

		ids := make([]string, len(listed))
		for i, f := range listed {
			ids[i] = f.ID
		}

		rows, err := e.valuesReport(ctx, api.ReportQuery{
			Kind:       api.FormValues,
			Statistics: formStatistics,
			Start:      r.Start,
			End:        r.End,
		}, ids)
		if err != nil {
			return Forms{}, err
		}

		// Rows are per form version; sum them per form.
		type totals struct{ views, submits float64 }
		byForm := make(map[string]totals)
		malformed := 0
		for _, row := range rows {
			id := row.Groupings[api.FormValues.IDField()]
			views, err := row.Statistics.Float(api.StatViewedForm)
			if err != nil {
				malformed++
			}
			submits, err := row.Statistics.Float(api.StatSubmits)
			if err != nil {
				malformed++
			}
			t := byForm[id]
			t.views += views
			t.submits += submits
			byForm[id] = t
		}
		e.warnMalformed(malformed, api.FormValues.IDField())

		out := Forms{Items: make([]Form, 0, len(listed))}
		for _, f := range listed {
			t := byForm[f.ID]
			out.Items = append(out.Items, Form{
				ID:         f.ID,
				Name:       f.Attributes.Name,
				Status:     f.Attributes.Status,
				Views:      t.views,
				Submits:    t.submits,
				SubmitRate: ratio(t.submits, t.views),
			})
			out.Views += t.views
			out.Submits += t.submits
		}
		out.SubmitRate = ratio(out.Submits, out.Views)
		return out, nil
	})
}
