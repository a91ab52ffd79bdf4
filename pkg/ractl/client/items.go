package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Item is one record as returned by the server.
type Item = map[string]any

type ListOptions struct {
	Limit  int
	Offset int
}

func (o ListOptions) values() url.Values {
	if o.Limit <= 0 && o.Offset <= 0 {
		return nil
	}
	v := url.Values{}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		v.Set("offset", strconv.Itoa(o.Offset))
	}
	return v
}

func (c *Client) List(ctx context.Context, resource string, opts ListOptions) ([]Item, error) {
	r, err := resolve(resource, OpList, "")
	if err != nil {
		return nil, err
	}
	var items []Item
	if err := c.do(ctx, request{method: http.MethodGet, endpoint: r.Path, query: opts.values()}, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func (c *Client) Get(ctx context.Context, resource, id string) (Item, error) {
	r, err := resolve(resource, OpGet, id)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := c.do(ctx, request{method: http.MethodGet, endpoint: r.Path, id: id}, &item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) Create(ctx context.Context, resource string, data map[string]string) (Item, error) {
	r, err := resolve(resource, OpCreate, "")
	if err != nil {
		return nil, err
	}
	var item Item
	if err := c.do(ctx, request{method: http.MethodPost, endpoint: r.Path, body: data}, &item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) Update(ctx context.Context, resource, id string, data map[string]string) (Item, error) {
	r, err := resolve(resource, OpUpdate, id)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := c.do(ctx, request{method: http.MethodPut, endpoint: r.Path, id: id, body: data}, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// Delete removes a record. Servers answer with the deleted record or with
// an empty body; the latter yields a nil Item.
func (c *Client) Delete(ctx context.Context, resource, id string) (Item, error) {
	r, err := resolve(resource, OpDelete, id)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := c.do(ctx, request{method: http.MethodDelete, endpoint: r.Path, id: id}, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// Query lists the whole collection and keeps the items whose fields match
// every filter. Values compare as strings, case-insensitively.
func (c *Client) Query(ctx context.Context, resource string, filters map[string]string) ([]Item, error) {
	r, err := resolve(resource, OpQuery, "")
	if err != nil {
		return nil, err
	}
	var items []Item
	if err := c.do(ctx, request{method: http.MethodGet, endpoint: r.Path}, &items); err != nil {
		return nil, err
	}
	return FilterItems(items, filters), nil
}

// FilterItems returns the items matching all filters. A missing field never
// matches.
func FilterItems(items []Item, filters map[string]string) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if matches(item, filters) {
			out = append(out, item)
		}
	}
	return out
}

func matches(item Item, filters map[string]string) bool {
	for key, want := range filters {
		got, ok := item[key]
		if !ok {
			return false
		}
		if !strings.EqualFold(FieldString(got), want) {
			return false
		}
	}
	return true
}

// FieldString renders a decoded JSON value the way it is compared and shown
// in tables.
func FieldString(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "True"
		}
		return "False"
	case map[string]any, []any:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	default:
		return fmt.Sprint(val)
	}
}
