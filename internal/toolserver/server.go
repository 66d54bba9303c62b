package toolserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"recipost/internal/pipeline"
	"recipost/internal/publish"
)

const protocolVersion = "2024-11-05"

// Tool names.
const (
	ToolDraft   = "draft_recipe_note"
	ToolSave    = "save_recipe_draft"
	ToolPublish = "generate_and_publish_recipe"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Service is what the tools call into.
type Service interface {
	Draft(ctx context.Context, url string) (*pipeline.Draft, error)
	Run(ctx context.Context, url string, mode publish.Mode) (*pipeline.Report, error)
}

// Request is a JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Tool describes one callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// TextContent is the only content type the tools return.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result of tools/call.
type CallResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type urlArgs struct {
	URL string `json:"url"`
}

// Server speaks newline-delimited JSON-RPC on a reader/writer pair, one
// request at a time. A publish blocks the loop until its outcome is known,
// so attempts never overlap.
type Server struct {
	svc     Service
	name    string
	version string
	logger  *zap.Logger

	mu sync.Mutex
	w  *bufio.Writer
}

// New creates a Server.
func New(svc Service, name, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, name: name, version: version, logger: logger}
}

// Serve reads requests from in until EOF or ctx is done.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.w = bufio.NewWriter(out)
	r := bufio.NewReaderSize(in, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if resp := s.handleLine(ctx, line); resp != nil {
				if werr := s.send(resp); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (s *Server) send(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *Server) handleLine(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(json.RawMessage("null"), codeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		id := req.ID
		if len(id) == 0 {
			id = json.RawMessage("null")
		}
		return errorResponse(id, codeInvalidRequest, "invalid request")
	}
	notification := len(req.ID) == 0 || string(req.ID) == "null"

	result, rpcErr := s.dispatch(ctx, req)
	if notification {
		return nil
	}
	if rpcErr != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, *Error) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": s.name, "version": s.version},
		}, nil
	case "notifications/initialized", "notifications/cancelled", "ping":
		// a notification sent with an id still gets an empty result
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": Tools()}, nil
	case "tools/call":
		var p callParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &Error{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
		}
		return s.call(ctx, p)
	default:
		return nil, &Error{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) call(ctx context.Context, p callParams) (any, *Error) {
	var args urlArgs
	if len(p.Arguments) > 0 {
		if err := json.Unmarshal(p.Arguments, &args); err != nil {
			return nil, &Error{Code: codeInvalidParams, Message: "invalid arguments: " + err.Error()}
		}
	}
	url := strings.TrimSpace(args.URL)

	switch p.Name {
	case ToolDraft, ToolSave, ToolPublish:
	default:
		return nil, &Error{Code: codeInvalidParams, Message: "unknown tool: " + p.Name}
	}
	if url == "" {
		return nil, &Error{Code: codeInvalidParams, Message: "missing url parameter"}
	}

	logger := s.logger.With(zap.String("tool", p.Name), zap.String("url", url))
	logger.Info("tool call")

	switch p.Name {
	case ToolDraft:
		d, err := s.svc.Draft(ctx, url)
		if err != nil {
			logger.Warn("draft failed", zap.Error(err))
			return textResult(fmt.Sprintf("执行草稿生成失败: %v", err), true), nil
		}
		md, _ := d.ToMarkdown()
		return textResult(md, false), nil
	default:
		mode := publish.ModePublish
		if p.Name == ToolSave {
			mode = publish.ModeDraft
		}
		rep, err := s.svc.Run(ctx, url, mode)
		if err != nil {
			logger.Warn("run failed", zap.Error(err))
			return textResult(fmt.Sprintf("执行失败: %v", err), true), nil
		}
		md, _ := rep.ToMarkdown()
		logger.Info("tool finished", zap.String("kind", string(rep.Outcome.Kind)), zap.String("attempt", rep.Outcome.AttemptID))
		return textResult(md, !rep.Outcome.OK()), nil
	}
}

func textResult(text string, isError bool) CallResult {
	return CallResult{Content: []TextContent{{Type: "text", Text: text}}, IsError: isError}
}

func errorResponse(id json.RawMessage, code int, msg string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg}}
}

func urlSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "要抓取的食谱网页URL",
			},
		},
		"required": []string{"url"},
	}
}

// Tools lists the tools the server exposes.
func Tools() []Tool {
	return []Tool{
		{
			Name:        ToolDraft,
			Description: "仅生成小红书笔记草稿（抓取网页+生成文案+获取图片链接），不进行发布。",
			InputSchema: urlSchema(),
		},
		{
			Name:        ToolSave,
			Description: "抓取食谱网页并生成文案，下载图片或视频后在小红书创作平台保存为草稿，返回结果与截图路径。",
			InputSchema: urlSchema(),
		},
		{
			Name:        ToolPublish,
			Description: "从给定的食谱网页URL抓取内容，使用AI生成小红书笔记风格的文案，并自动打开浏览器发布到小红书（首次需扫码）。",
			InputSchema: urlSchema(),
		},
	}
}
