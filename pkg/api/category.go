package api

import (
	"context"
	"net/http"
	"net/url"
)

// Category groups reports.
type Category struct {
	ID          int64  `json:"id,omitempty"          yaml:"id,omitempty"`
	Oid         string `json:"oid"                   yaml:"oid"`
	Name        string `json:"name"                  yaml:"name"`
	Order       int    `json:"order"                 yaml:"order"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Cover       string `json:"cover,omitempty"       yaml:"cover,omitempty"`
	Total       int    `json:"total,omitempty"       yaml:"total,omitempty"`
}

// ListCategories returns all of the caller's categories.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.call(ctx, http.MethodGet, "/calc-report-category/list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCategory creates a category.
func (c *Client) CreateCategory(ctx context.Context, name string, order int, description string) (*Category, error) {
	body := map[string]any{"name": name, "order": order}
	if description != "" {
		body["description"] = description
	}
	var out Category
	if err := c.call(ctx, http.MethodPost, "/calc-report-category", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCategory replaces the provided fields of a category.
func (c *Client) UpdateCategory(ctx context.Context, categoryOid string, fields map[string]any) (*Category, error) {
	var out Category
	if err := c.call(ctx, http.MethodPut, "/calc-report-category/"+url.PathEscape(categoryOid), fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCategory removes a category.
func (c *Client) DeleteCategory(ctx context.Context, categoryOid string) error {
	return c.call(ctx, http.MethodDelete, "/calc-report-category/"+url.PathEscape(categoryOid), nil, nil)
}
