package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/uyoufu/uzoncalc/pkg/calc"
)

// Endpoint keys accepted in Options.Endpoints.
const (
	EndpointStart      = "start"
	EndpointResume     = "resume"
	EndpointFile       = "file"
	EndpointSelectFile = "selectFile"
)

func defaultEndpoints() map[string]string {
	return map[string]string{
		EndpointStart:      "/calc/execution/start",
		EndpointResume:     "/calc/execution/resume/{executionId}",
		EndpointFile:       "/calc/execution/file",
		EndpointSelectFile: "/desktop/select-file",
	}
}

// Endpoint returns the configured path for key.
func (c *Client) Endpoint(key string) string {
	return c.endpoints[key]
}

type startRequest struct {
	ReportOid string        `json:"reportOid"`
	IsSilent  bool          `json:"isSilent"`
	Defaults  calc.Defaults `json:"defaults"`
}

type fileRequest struct {
	FilePath string        `json:"filePath"`
	Defaults calc.Defaults `json:"defaults"`
}

type resumeRequest struct {
	Defaults calc.Defaults `json:"defaults"`
}

// StartExecution starts a calculation of a stored report.
func (c *Client) StartExecution(ctx context.Context, reportOid string, isSilent bool, defaults calc.Defaults) (*calc.ExecutionResult, error) {
	return c.execute(ctx, c.endpoints[EndpointStart], startRequest{
		ReportOid: reportOid,
		IsSilent:  isSilent,
		Defaults:  nonNil(defaults),
	})
}

// StartFileExecution starts a calculation of a report file on the backend host.
func (c *Client) StartFileExecution(ctx context.Context, filePath string, defaults calc.Defaults) (*calc.ExecutionResult, error) {
	return c.execute(ctx, c.endpoints[EndpointFile], fileRequest{
		FilePath: filePath,
		Defaults: nonNil(defaults),
	})
}

// ResumeExecution continues a paused session with the given field values.
func (c *Client) ResumeExecution(ctx context.Context, executionID string, defaults calc.Defaults) (*calc.ExecutionResult, error) {
	if executionID == "" {
		return nil, fmt.Errorf("resume: empty execution id")
	}
	path := strings.ReplaceAll(c.endpoints[EndpointResume], "{executionId}", url.PathEscape(executionID))
	return c.execute(ctx, path, resumeRequest{Defaults: nonNil(defaults)})
}

func (c *Client) execute(ctx context.Context, path string, body any) (*calc.ExecutionResult, error) {
	data, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if c.validator != nil {
		if err := c.validator.Validate(data); err != nil {
			err = fmt.Errorf("POST %s: %w", path, err)
			c.notifier.Error(err.Error())
			return nil, err
		}
	}
	var result calc.ExecutionResult
	if err := decodeData(http.MethodPost, path, data, &result); err != nil {
		return nil, err
	}
	result.Normalize()
	return &result, nil
}

// SelectLocalFile asks the desktop backend to show a file dialog. It returns
// "" when the user cancelled. Only available when the backend runs in
// desktop mode.
func (c *Client) SelectLocalFile(ctx context.Context) (string, error) {
	var path string
	if err := c.call(ctx, http.MethodGet, c.endpoints[EndpointSelectFile], nil, &path); err != nil {
		return "", err
	}
	return path, nil
}

func nonNil(d calc.Defaults) calc.Defaults {
	if d == nil {
		return calc.Defaults{}
	}
	return d
}
