package remote

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpClient is the slice of the MCP client surface the gateway uses.
// Tests substitute a fake; production code wraps *client.Client.
type mcpClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// clientFactory builds a transport-specific MCP client for a spec.
// Replaced in tests.
type clientFactory func(spec ProviderSpec) (mcpClient, error)

// newMCPClient is the production factory.
func newMCPClient(spec ProviderSpec) (mcpClient, error) {
	switch spec.Transport {
	case TransportStdio:
		c, err := client.NewStdioMCPClient(spec.Command, spec.Env, spec.Args...)
		if err != nil {
			return nil, fmt.Errorf("remote: spawn %s: %w", spec.ID, err)
		}
		return c, nil
	case TransportSSE:
		c, err := client.NewSSEMCPClient(spec.URL)
		if err != nil {
			return nil, fmt.Errorf("remote: sse client for %s: %w", spec.ID, err)
		}
		return c, nil
	case TransportStreamableHTTP:
		c, err := client.NewStreamableHttpClient(spec.URL)
		if err != nil {
			return nil, fmt.Errorf("remote: http client for %s: %w", spec.ID, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("remote: %w: %s", ErrBadTransport, spec.Transport)
	}
}

// initializeRequest builds the MCP handshake request.
func initializeRequest() mcp.InitializeRequest {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "streamexec",
		Version: "1.0.0",
	}
	return req
}
