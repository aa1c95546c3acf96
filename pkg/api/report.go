package api

import (
	"context"
	"net/http"
	"net/url"
)

// Report is the stored metadata of a calculation report.
type Report struct {
	ID          int64  `json:"id"                    yaml:"id"`
	Oid         string `json:"oid"                   yaml:"oid"`
	UserID      int64  `json:"userId"                yaml:"userId"`
	CategoryID  int64  `json:"categoryId"            yaml:"categoryId"`
	Name        string `json:"name"                  yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Cover       string `json:"cover,omitempty"       yaml:"cover,omitempty"`
}

// Pagination selects one page of a list.
type Pagination struct {
	Skip       int    `json:"skip"`
	Limit      int    `json:"limit"`
	SortBy     string `json:"sortBy,omitempty"`
	Descending bool   `json:"descending"`
}

// ReportFilter narrows report listings.
type ReportFilter struct {
	CategoryID int64      `json:"categoryId,omitempty"`
	Filter     string     `json:"filter,omitempty"`
	Pagination Pagination `json:"pagination"`
}

// ReportPage is one page of reports.
type ReportPage struct {
	Items []Report `json:"items" yaml:"items"`
	Total int      `json:"total" yaml:"total"`
	Skip  int      `json:"skip"  yaml:"skip"`
	Limit int      `json:"limit" yaml:"limit"`
}

// SaveReportRequest writes report source code. ReportOid is empty for a new
// report; CategoryOid is only honoured on creation.
type SaveReportRequest struct {
	ReportName  string `json:"reportName"`
	Code        string `json:"code"`
	ReportOid   string `json:"reportOid,omitempty"`
	CategoryOid string `json:"categoryOid,omitempty"`
}

// CreateReportRequest registers report metadata in a category.
type CreateReportRequest struct {
	CategoryID  int64  `json:"categoryId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Cover       string `json:"cover,omitempty"`
}

// GetReport fetches one report by oid.
func (c *Client) GetReport(ctx context.Context, reportOid string, opts ...CallOption) (*Report, error) {
	var r Report
	if err := c.call(ctx, http.MethodGet, "/calc-report/"+url.PathEscape(reportOid), nil, &r, opts...); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReports returns one page of the caller's reports.
func (c *Client) ListReports(ctx context.Context, filter ReportFilter) (*ReportPage, error) {
	if filter.Pagination.Limit <= 0 {
		filter.Pagination.Limit = 10
	}
	var page ReportPage
	if err := c.call(ctx, http.MethodPost, "/calc-report/list", filter, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CountReports returns how many reports match filter.
func (c *Client) CountReports(ctx context.Context, categoryID int64, filter string) (int, error) {
	body := map[string]any{"filter": filter}
	if categoryID != 0 {
		body["categoryId"] = categoryID
	}
	var out struct {
		Total int `json:"total"`
	}
	if err := c.call(ctx, http.MethodPost, "/calc-report/count", body, &out); err != nil {
		return 0, err
	}
	return out.Total, nil
}

// CreateReport registers a new report.
func (c *Client) CreateReport(ctx context.Context, req CreateReportRequest) (*Report, error) {
	var r Report
	if err := c.call(ctx, http.MethodPost, "/calc-report", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveReport writes report source and returns the report oid.
func (c *Client) SaveReport(ctx context.Context, req SaveReportRequest) (string, error) {
	var oid string
	if err := c.call(ctx, http.MethodPost, "/calc-report/save", req, &oid); err != nil {
		return "", err
	}
	return oid, nil
}
