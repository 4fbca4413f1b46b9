package api

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "integer", raw: `42`, want: 42},
		{name: "float", raw: `12.5`, want: 12.5},
		{name: "numeric string", raw: `"7.25"`, want: 7.25},
		{name: "empty string", raw: `""`, want: 0},
		{name: "null", raw: `null`, want: 0},
		{name: "empty", raw: ``, want: 0},
		{name: "single element list", raw: `[3.5]`, want: 3.5},
		{name: "empty list", raw: `[]`, want: 0},
		{name: "nested list", raw: `[["9"]]`, want: 9},
		{name: "keyed value", raw: `{"value": 11}`, want: 11},
		{name: "first numeric field", raw: `{"currency": "USD", "amount": 19.99}`, want: 19.99},
		{name: "multi element list", raw: `[1, 2]`, wantErr: true},
		{name: "text", raw: `"n/a"`, wantErr: true},
		{name: "object without number", raw: `{"currency": "USD"}`, wantErr: true},
		{name: "boolean", raw: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Number(json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrNotNumeric) {
					t.Errorf("Number(%s) error = %v, want ErrNotNumeric", tt.raw, err)
				}
				if NumberOrZero(json.RawMessage(tt.raw)) != 0 {
					t.Errorf("NumberOrZero(%s) should be 0", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("Number(%s) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Number(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValue_Unmarshal(t *testing.T) {
	var doc struct {
		A *Value `json:"a"`
		B *Value `json:"b"`
		C *Value `json:"c"`
		D *Value `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a": [5], "b": "oops", "c": {"value": "2"}}`), &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if doc.A.Float() != 5 || doc.B.Float() != 0 || doc.C.Float() != 2 || doc.D.Float() != 0 {
		t.Errorf("values = %v %v %v %v", doc.A.Float(), doc.B.Float(), doc.C.Float(), doc.D.Float())
	}
}

func TestStatistics_Float(t *testing.T) {
	stats := Statistics{
		"recipients":       json.RawMessage(`100`),
		"conversion_value": json.RawMessage(`{"value": 250.5}`),
		"open_rate":        json.RawMessage(`"bad"`),
	}

	if v, err := stats.Float("recipients"); err != nil || v != 100 {
		t.Errorf("recipients = %v, %v", v, err)
	}
	if v, err := stats.Float("conversion_value"); err != nil || v != 250.5 {
		t.Errorf("conversion_value = %v, %v", v, err)
	}
	if v, err := stats.Float("clicks_unique"); err != nil || v != 0 {
		t.Errorf("missing statistic = %v, %v", v, err)
	}
	if _, err := stats.Float("open_rate"); !errors.Is(err, ErrNotNumeric) {
		t.Errorf("malformed statistic error = %v", err)
	}
}
