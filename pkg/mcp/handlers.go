// Package mcp exposes the execution client as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/execution"
	"github.com/uyoufu/uzoncalc/pkg/inputs"
	"github.com/uyoufu/uzoncalc/pkg/notify"
	"github.com/uyoufu/uzoncalc/pkg/render"
	"github.com/uyoufu/uzoncalc/pkg/schema"
)

// Handlers binds the MCP tools to one Executor. Notes must be the
// Executor's notifier so notifications can be returned with each result.
type Handlers struct {
	Executor *execution.Executor
	Notes    *notify.Recorder
}

// status is the JSON body returned by every execution tool.
type status struct {
	Source      execution.Source `json:"source"`
	ExecutionID string           `json:"executionId,omitempty"`
	IsCompleted bool             `json:"isCompleted"`
	Executing   bool             `json:"executing"`
	Windows     []calc.Window    `json:"windows,omitempty"`
	Output      string           `json:"output,omitempty"`
	Notes       []string         `json:"notes,omitempty"`
}

// HandleStart implements the uzoncalc/start MCP tool.
func (h *Handlers) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	report, _ := args["report"].(string)
	path, _ := args["path"].(string)
	if report != "" && path != "" {
		return errorResult("pass either report or path, not both"), nil
	}
	values, err := defaultsArg(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	switch {
	case report != "":
		h.Executor.SetReport(report, report)
	case path != "":
		h.Executor.UseLocalFile(path)
	}
	if silent, ok := args["silent"].(bool); ok {
		h.Executor.SetSilent(silent)
	}

	var defaults calc.Defaults
	if values != nil {
		defaults = inputs.Merge(h.Executor.InputValues(), values)
	}
	err = h.Executor.Start(ctx, defaults)
	if errors.Is(err, execution.ErrSessionExists) {
		err = fmt.Errorf("%w; use uzoncalc/restart", err)
	}
	return h.result(err)
}

// HandleResume implements the uzoncalc/resume MCP tool.
func (h *Handlers) HandleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	values, err := defaultsArg(req.GetArguments())
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if values != nil {
		h.Executor.ApplyDefaults(values)
	}
	return h.result(h.Executor.Resume(ctx))
}

// HandleRestart implements the uzoncalc/restart MCP tool.
func (h *Handlers) HandleRestart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.result(h.Executor.Restart(ctx))
}

// HandleStatus implements the uzoncalc/status MCP tool.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.result(nil)
}

// HandleSet implements the uzoncalc/set MCP tool.
func (h *Handlers) HandleSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	raw, _ := args["assignment"].(string)
	if raw == "" {
		return errorResult("assignment argument is required"), nil
	}
	a, err := inputs.ParseAssignment(raw)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	value := a.Eval(h.Executor.InputValues())
	if h.Executor.ApplyDefaults(calc.Defaults{a.Window: {a.Field: value}}) == 0 {
		return errorResult(fmt.Sprintf("no field %q in window %q", a.Field, a.Window)), nil
	}
	return textResult(fmt.Sprintf("%s.%s = %s", a.Window, a.Field, render.FormatValue(value))), nil
}

// HandleSchema implements the uzoncalc/schema MCP tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateExecutionResultJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// result renders the executor state together with any pending
// notifications. opErr marks the result as an error.
func (h *Handlers) result(opErr error) (*mcp.CallToolResult, error) {
	snap := h.Executor.Snapshot()
	st := status{
		Source:      snap.Source,
		ExecutionID: snap.Result.ExecutionID,
		IsCompleted: snap.Result.IsCompleted,
		Executing:   h.Executor.IsExecuting(),
		Windows:     snap.Result.Windows,
	}
	if snap.Result.HTML != "" {
		if out, err := render.Markdown(snap.Result.HTML); err == nil {
			st.Output = out
		} else {
			st.Output = render.Text(snap.Result.HTML)
		}
	}
	if h.Notes != nil {
		for _, n := range h.Notes.Drain() {
			st.Notes = append(st.Notes, notify.Text(n.Message))
		}
	}
	if opErr != nil {
		st.Notes = append(st.Notes, opErr.Error())
	}

	data, _ := json.MarshalIndent(st, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: opErr != nil,
	}, nil
}

// defaultsArg decodes the optional "values" argument. It returns nil when
// the argument is absent.
func defaultsArg(args map[string]any) (calc.Defaults, error) {
	raw, ok := args["values"]
	if !ok || raw == nil {
		return nil, nil
	}
	windows, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("values must be an object keyed by window title")
	}
	out := make(calc.Defaults, len(windows))
	for title, v := range windows {
		fields, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("values[%q] must be an object keyed by field name", title)
		}
		out[title] = fields
	}
	return out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
