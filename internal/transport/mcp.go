package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"choreo/internal/expectation"
	"choreo/internal/message"
	"choreo/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCP tool arguments carrying a message.
const (
	mcpArgBody    = "body"
	mcpArgHeaders = "headers"
)

// MCPFeeder exposes every attached endpoint as an MCP tool. The tool name
// is the feeder address, or the endpoint id when no address is set. The
// tool takes a "body" string and an optional "headers" object and answers
// with the reply body as text; failures come back as tool errors.
type MCPFeeder struct {
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer

	mu    sync.Mutex
	tools map[string]string
}

// NewMCPFeeder creates a feeder whose MCP server is named name.
func NewMCPFeeder(name, version string) *MCPFeeder {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)
	return &MCPFeeder{
		mcpServer:  mcpServer,
		httpServer: server.NewStreamableHTTPServer(mcpServer),
		tools:      make(map[string]string),
	}
}

// Kind returns KindMCP.
func (f *MCPFeeder) Kind() string { return KindMCP }

// Server returns the underlying MCP server.
func (f *MCPFeeder) Server() *server.MCPServer { return f.mcpServer }

// ServeHTTP serves the streamable HTTP transport.
func (f *MCPFeeder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.httpServer.ServeHTTP(w, r)
}

// Attach registers a tool for endpointID.
func (f *MCPFeeder) Attach(endpointID string, cfg expectation.FeederConfig, h Handler) (func(), error) {
	name := cfg.Address
	if name == "" {
		name = endpointID
	}

	f.mu.Lock()
	if owner, taken := f.tools[name]; taken {
		f.mu.Unlock()
		return nil, fmt.Errorf("tool %s is already served for endpoint %s", name, owner)
	}
	f.tools[name] = endpointID
	f.mu.Unlock()

	description := cfg.Options["description"]
	if description == "" {
		description = fmt.Sprintf("Stand-in endpoint %s", endpointID)
	}
	tool := mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString(mcpArgBody, mcp.Description("Message body")),
		mcp.WithObject(mcpArgHeaders, mcp.Description("Message headers")),
	)
	f.mcpServer.AddTool(tool, f.toolHandler(endpointID, h))
	logging.Debug("Transport", "mcp: endpoint %s served as tool %s", endpointID, name)

	return func() {
		f.mu.Lock()
		delete(f.tools, name)
		f.mu.Unlock()
		f.mcpServer.DeleteTools(name)
	}, nil
}

func (f *MCPFeeder) toolHandler(endpointID string, h Handler) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		body, _ := args[mcpArgBody].(string)
		msg := message.New(body)
		if headers, ok := args[mcpArgHeaders].(map[string]interface{}); ok {
			for name, value := range headers {
				msg.SetHeader(name, fmt.Sprintf("%v", value))
			}
		}

		resp, err := h.OnMessageArrived(ctx, endpointID, msg)
		if err != nil {
			var planned *expectation.ReplyFailure
			if errors.As(err, &planned) {
				return mcp.NewToolResultError(planned.Err.Error()), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		if resp == nil {
			return mcp.NewToolResultText(""), nil
		}
		return mcp.NewToolResultText(resp.BodyString()), nil
	}
}

// MCPSender calls the tool named after the target endpoint on a remote MCP
// server over streamable HTTP. The session is opened lazily.
type MCPSender struct {
	endpoint string
	timeout  time.Duration

	mu     sync.Mutex
	client *client.Client
}

// NewMCPSender creates a sender for the MCP server at endpoint.
func NewMCPSender(endpoint string, timeout time.Duration) *MCPSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MCPSender{endpoint: endpoint, timeout: timeout}
}

func (s *MCPSender) connect(ctx context.Context) (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	c, err := client.NewStreamableHttpClient(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable-http client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start streamable-http client: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = "2024-11-05"
	req.Params.ClientInfo = mcp.Implementation{Name: "choreo", Version: "1.0.0"}
	req.Params.Capabilities = mcp.ClientCapabilities{}

	initCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := c.Initialize(initCtx, req); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	s.client = c
	return c, nil
}

// Send calls the tool named endpointID with the message body and headers.
func (s *MCPSender) Send(ctx context.Context, endpointID string, msg *message.Message) (*message.Message, error) {
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]interface{}, len(msg.Headers))
	for name, value := range msg.Headers {
		headers[name] = value
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = endpointID
	req.Params.Arguments = map[string]interface{}{
		mcpArgBody:    msg.BodyString(),
		mcpArgHeaders: headers,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := c.CallTool(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp: call %s: %w", endpointID, err)
	}

	text := resultText(result)
	if result.IsError {
		return nil, &FailureError{EndpointID: endpointID, Reason: text}
	}
	reply := message.New(text)
	reply.EndpointID = endpointID
	return reply, nil
}

// Close ends the session, if one was opened.
func (s *MCPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}
