package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/llm/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// NameSeparator 分隔服务器名与工具名
const NameSeparator = "__"

const defaultCallTimeout = 60 * time.Second

var clientInfo = &mcp.Implementation{Name: "skillflow", Version: "1.0.0"}

// NamedTransport 已构建好的传输层
type NamedTransport struct {
	Name      string
	Transport mcp.Transport
}

// Client 多服务器 MCP 客户端，一次调用独占，Close 只释放一次
type Client struct {
	registry *tools.DefaultRegistry
	sessions []*mcp.ClientSession
	names    []string
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Connect 按配置连接所有服务器。单个服务器失败会被跳过，全部失败才返回错误。
func Connect(ctx context.Context, servers []config.MCPServerConfig, logger *zap.Logger) (*Client, error) {
	transports := make([]NamedTransport, 0, len(servers))
	for _, s := range servers {
		t, err := BuildTransport(s)
		if err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", s.Name, err)
		}
		transports = append(transports, NamedTransport{Name: s.Name, Transport: t})
	}
	return ConnectTransports(ctx, transports, logger)
}

// ConnectTransports 连接给定传输层，列出工具并注册为 <server>__<tool>。
func ConnectTransports(ctx context.Context, transports []NamedTransport, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		registry: tools.NewDefaultRegistry(logger),
		logger:   logger.With(zap.String("component", "mcp_client")),
	}

	var errs []error
	for _, nt := range transports {
		if err := c.connectOne(ctx, nt); err != nil {
			c.logger.Warn("mcp server unavailable, skipping", zap.String("server", nt.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", nt.Name, err))
		}
	}
	if len(transports) > 0 && len(c.sessions) == 0 {
		return nil, fmt.Errorf("no mcp server reachable: %w", errors.Join(errs...))
	}
	c.logger.Info("mcp client connected",
		zap.Strings("servers", c.names),
		zap.Int("tools", len(c.registry.List())),
	)
	return c, nil
}

func (c *Client) connectOne(ctx context.Context, nt NamedTransport) error {
	client := mcp.NewClient(clientInfo, nil)
	// 会话生命周期跟随 Close，而不是调用方的 ctx
	session, err := client.Connect(context.WithoutCancel(ctx), nt.Transport, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	listed, err := listTools(ctx, session)
	if err != nil {
		_ = session.Close()
		return err
	}
	for _, tool := range listed {
		name := nt.Name + NameSeparator + tool.Name
		meta := tools.ToolMetadata{Timeout: defaultCallTimeout}
		meta.Schema.Name = name
		meta.Schema.Description = tool.Description
		if tool.InputSchema != nil {
			if raw, err := json.Marshal(tool.InputSchema); err == nil {
				meta.Schema.Parameters = raw
			}
		}
		if err := c.registry.Register(name, callTool(session, tool.Name), meta); err != nil {
			_ = session.Close()
			return err
		}
	}
	c.sessions = append(c.sessions, session)
	c.names = append(c.names, nt.Name)
	return nil
}

// listTools 遍历分页获取全部工具
func listTools(ctx context.Context, session *mcp.ClientSession) ([]*mcp.Tool, error) {
	var out []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		out = append(out, res.Tools...)
		if res.NextCursor == "" {
			return out, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

func callTool(session *mcp.ClientSession, remote string) tools.ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		arguments := map[string]any{}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &arguments); err != nil {
				return nil, fmt.Errorf("decode arguments for %s: %w", remote, err)
			}
		}
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: remote, Arguments: arguments})
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", remote, err)
		}
		text := contentText(res.Content)
		if res.IsError {
			return nil, errors.New(text)
		}
		if res.StructuredContent != nil {
			return json.Marshal(res.StructuredContent)
		}
		return json.Marshal(text)
	}
}

// contentText 拼接文本内容，其他类型只保留占位说明
func contentText(contents []mcp.Content) string {
	parts := make([]string, 0, len(contents))
	for _, content := range contents {
		switch v := content.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes]", v.MIMEType, len(v.Data)))
		case *mcp.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource %s]", v.URI))
		}
	}
	return strings.Join(parts, "\n")
}

// Registry 返回聚合后的工具注册表
func (c *Client) Registry() tools.Registry {
	return c.registry
}

// Servers 返回已连接的服务器名
func (c *Client) Servers() []string {
	return append([]string(nil), c.names...)
}

// Close 关闭所有会话，重复调用只生效一次
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for i, s := range c.sessions {
			if err := s.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", c.names[i], err))
			}
		}
		c.closeErr = errors.Join(errs...)
		c.logger.Debug("mcp client closed", zap.Int("sessions", len(c.sessions)))
	})
	return c.closeErr
}

// =============================================================================
// 🔌 传输层
// =============================================================================

// BuildTransport 按配置构建 stdio 或 streamable HTTP 传输层
func BuildTransport(s config.MCPServerConfig) (mcp.Transport, error) {
	switch {
	case s.Command != "" && s.URL != "":
		return nil, errors.New("exactly one of command or url is required")
	case s.Command != "":
		cmd := exec.Command(s.Command, s.Args...)
		if len(s.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range s.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case s.URL != "":
		t := &mcp.StreamableClientTransport{Endpoint: s.URL}
		if len(s.Headers) > 0 {
			t.HTTPClient = &http.Client{Transport: &headerRoundTripper{base: http.DefaultTransport, headers: s.Headers}}
		}
		return t, nil
	default:
		return nil, errors.New("command or url is required")
	}
}

// headerRoundTripper 为每个请求附加固定请求头
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (rt *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range rt.headers {
		clone.Header.Set(k, v)
	}
	return rt.base.RoundTrip(clone)
}
