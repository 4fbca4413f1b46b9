package pagination

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
	"github.com/Sternrassler/klaviyo-extractor/pkg/client"
	"github.com/rs/zerolog/log"
)

// MaxPages bounds a single listing walk.
const MaxPages = 1000

// Getter is the part of the client pagination needs.
type Getter interface {
	Get(ctx context.Context, endpoint string, query url.Values) (*client.Response, error)
}

// PageFunc fetches the page at cursor ("" for the first page) and returns its
// items and the next cursor ("" on the last page).
type PageFunc[T any] func(ctx context.Context, cursor string) (items []T, next string, err error)

// Collect follows cursors until the last page and concatenates the items.
func Collect[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	var (
		all    []T
		cursor string
		seen   = make(map[string]bool)
	)

	for page := 1; ; page++ {
		if page > MaxPages {
			return all, fmt.Errorf("listing exceeded %d pages", MaxPages)
		}

		items, next, err := fetch(ctx, cursor)
		if err != nil {
			return all, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, items...)

		if next == "" {
			return all, nil
		}
		if seen[next] {
			return all, fmt.Errorf("page %d: cursor repeated", page)
		}
		seen[next] = true
		cursor = next
	}
}

// CollectResources walks a JSON:API listing. The first request goes to
// endpoint with query; later pages follow links.next verbatim.
func CollectResources[A any](ctx context.Context, getter Getter, endpoint string, query url.Values) ([]api.Resource[A], error) {
	resources, err := Collect(ctx, func(ctx context.Context, cursor string) ([]api.Resource[A], string, error) {
		target, q := endpoint, query
		if cursor != "" {
			target, q = cursor, nil
		}

		resp, err := getter.Get(ctx, target, q)
		if err != nil {
			return nil, "", err
		}

		var doc api.ListDocument[A]
		if err := resp.Decode(&doc); err != nil {
			return nil, "", err
		}
		return doc.Data, doc.Links.Next, nil
	})
	if err != nil {
		return resources, err
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("resources", len(resources)).
		Msg("Listing collected")

	return resources, nil
}
