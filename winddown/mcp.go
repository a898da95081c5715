package winddown

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/winddown/kit"
)

// RegisterMCP registers wind-down tools on an MCP server, giving assistants
// the same control surface the HTTP API exposes.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerStatusTool(srv)
	s.registerListTool(srv)
	s.registerSnoozeTool(srv)
	s.registerDismissTool(srv)
	s.registerPauseTool(srv)
	s.registerGetSettingsTool(srv)
	s.registerSetSettingsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// --- status ---

type statusReq struct {
	TabID int `json:"tab_id"`
}

func (s *Service) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "winddown_status",
		Description: "Get the wind-down timer status for one tab.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": map[string]any{"type": "integer", "description": "Tab id"},
		}, []string{"tab_id"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*statusReq)
		st, ok := s.engine.Status(r.TabID)
		if !ok {
			return nil, ErrNoTimer
		}
		return st, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r statusReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- list ---

func (s *Service) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "winddown_list_timers",
		Description: "List all live wind-down timers with elapsed minutes.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"timers": s.engine.ListTimers()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- snooze ---

type snoozeReq struct {
	TabID int `json:"tab_id"`
}

func (s *Service) registerSnoozeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "winddown_snooze",
		Description: "Snooze a tab's wind-down timer for the configured snooze interval.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": map[string]any{"type": "integer", "description": "Tab id"},
		}, []string{"tab_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*snoozeReq)
		if err := s.engine.SnoozeTimer(ctx, r.TabID); err != nil {
			return nil, err
		}
		st, _ := s.engine.Status(r.TabID)
		return st, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r snoozeReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- dismiss ---

type dismissReq struct {
	TabID int `json:"tab_id"`
}

func (s *Service) registerDismissTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "winddown_dismiss",
		Description: "End the session for a tab: close it and clear its timer.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": map[string]any{"type": "integer", "description": "Tab id"},
		}, []string{"tab_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*dismissReq)
		if err := s.engine.DismissTimer(ctx, r.TabID); err != nil {
			return nil, err
		}
		return map[string]bool{"dismissed": true}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r dismissReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- pause ---

type pauseReq struct {
	Paused bool `json:"paused"`
}

func (s *Service) registerPauseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "winddown_pause",
		Description: "Pause or resume tracking for tonight. Pausing clears all timers.",
		InputSchema: inputSchema(map[string]any{
			"paused": map[string]any{"type": "boolean", "description": "Pause when true, resume when false"},
		}, []string{"paused"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pauseReq)
		st := s.engine.Settings()
		st.PausedForTonight = r.Paused
		if err := s.engine.UpdateSettings(ctx, st); err != nil {
			return nil, err
		}
		return map[string]bool{"paused": r.Paused}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r pauseReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- settings ---

func (s *Service) registerGetSettingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "winddown_get_settings",
		Description: "Get the current wind-down settings.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return s.engine.Settings(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerSetSettingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "winddown_set_settings",
		Description: "Replace the wind-down settings. Changes apply immediately to live timers.",
		InputSchema: inputSchema(map[string]any{
			"watch_minutes":      map[string]any{"type": "integer"},
			"countdown_seconds":  map[string]any{"type": "integer"},
			"snooze_minutes":     map[string]any{"type": "integer"},
			"bedtime_hour":       map[string]any{"type": "integer"},
			"bedtime_enabled":    map[string]any{"type": "boolean"},
			"paused_for_tonight": map[string]any{"type": "boolean"},
			"domains":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"custom_domains":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*Settings)
		if err := s.engine.UpdateSettings(ctx, *r); err != nil {
			return nil, err
		}
		return s.engine.Settings(), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r Settings
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
