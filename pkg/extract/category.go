package extract

import "fmt"

// Category is a kind of extracted data. The set is closed.
type Category int

const (
	CategoryRevenue Category = iota + 1
	CategoryCampaigns
	CategoryFlows
	CategoryLists
	CategoryForms
	CategoryFlowDetails
)

var categoryNames = map[Category]string{
	CategoryRevenue:     "revenue",
	CategoryCampaigns:   "campaigns",
	CategoryFlows:       "flows",
	CategoryLists:       "lists",
	CategoryForms:       "forms",
	CategoryFlowDetails: "flow_details",
}

// AllCategories returns every category in dataset order.
func AllCategories() []Category {
	return []Category{
		CategoryRevenue,
		CategoryCampaigns,
		CategoryFlows,
		CategoryLists,
		CategoryForms,
		CategoryFlowDetails,
	}
}

// Independent reports whether the category can start without waiting for
// another category. Flow deep-dives need the flow listing first.
func (c Category) Independent() bool {
	return c != CategoryFlowDetails
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return ""
}

// MarshalText implements encoding.TextMarshaler so categories work as JSON
// and YAML map keys.
func (c Category) MarshalText() ([]byte, error) {
	name, ok := categoryNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory returns the category named s.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}
