package estimate

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

// Definition is the token cost of one tool's tools/list descriptor.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tokens      int    `json:"tokens"`
}

// Describe lists the server's tools and counts each tool descriptor on
// its own, showing which definitions dominate the initialization cost.
// The result is sorted by descending token count, then by name.
func (e *Estimator) Describe(ctx context.Context) ([]Definition, error) {
	listing, err := e.caller.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	res := gjson.ParseBytes(listing)
	items := res
	if res.IsObject() {
		items = res.Get("tools")
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("unexpected tools/list response format: %s", truncate(jsonText(listing), 200))
	}

	defs := []Definition{}
	for _, item := range items.Array() {
		def := Definition{Tokens: e.counter.Count(jsonText([]byte(item.Raw)))}
		switch {
		case item.IsObject():
			def.Name = item.Get("name").String()
			def.Description = item.Get("description").String()
		case item.Type == gjson.String:
			def.Name = item.Str
		default:
			def.Name = item.Raw
		}
		defs = append(defs, def)
	}

	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Tokens != defs[j].Tokens {
			return defs[i].Tokens > defs[j].Tokens
		}
		return defs[i].Name < defs[j].Name
	})
	return defs, nil
}
