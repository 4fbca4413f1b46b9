// Package api holds the Klaviyo JSON:API wire types: resource documents, the
// filter DSL, metric aggregate and values/series report bodies, and number
// normalisation for loosely typed statistics.
package api

import "time"

// Resource is a JSON:API resource object.
type Resource[A any] struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes A      `json:"attributes"`
}

// Links are JSON:API pagination links. Next is empty on the last page.
type Links struct {
	Self string `json:"self,omitempty"`
	Next string `json:"next,omitempty"`
	Prev string `json:"prev,omitempty"`
}

// ListDocument is one page of a JSON:API collection.
type ListDocument[A any] struct {
	Data  []Resource[A] `json:"data"`
	Links Links         `json:"links"`
}

// Integration identifies where a metric comes from ("Shopify", "Klaviyo", ...).
type Integration struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// MetricAttributes are the attributes of a metric resource.
type MetricAttributes struct {
	Name        string       `json:"name"`
	Created     string       `json:"created"`
	Updated     string       `json:"updated"`
	Integration *Integration `json:"integration"`
}

// CampaignAttributes are the attributes of a campaign resource.
type CampaignAttributes struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Archived    bool       `json:"archived"`
	SendTime    *time.Time `json:"send_time"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	CreatedAt   *time.Time `json:"created_at"`
}

// FlowAttributes are the attributes of a flow resource.
type FlowAttributes struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Archived    bool       `json:"archived"`
	TriggerType string     `json:"trigger_type"`
	Created     *time.Time `json:"created"`
	Updated     *time.Time `json:"updated"`
}

// ListAttributes are the attributes of a list resource. ProfileCount is only
// present when requested via additional-fields[list]=profile_count.
type ListAttributes struct {
	Name         string     `json:"name"`
	Created      *time.Time `json:"created"`
	Updated      *time.Time `json:"updated"`
	ProfileCount *Value     `json:"profile_count"`
}

// FormAttributes are the attributes of a sign-up form resource.
type FormAttributes struct {
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	ABTest    bool       `json:"ab_test"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}
