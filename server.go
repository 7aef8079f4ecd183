package grounding

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const Version = "1.0.0"

const instructions = "This is a statutory grounding server: it retrieves the statute, state rule and " +
	"model agreement passages that support a contract clause, and reports how well they ground it"

// NewServer exposes the client as MCP tools.
func NewServer(serverName string, client *Client) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		serverName,
		Version,
		server.WithInstructions(instructions),
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	// Retrieval
	mcpServer.AddTool(GetRetrieveEvidenceTool(), HandleRetrieveEvidence(client))

	// Citations
	mcpServer.AddTool(GetNormalizeReferenceTool(), HandleNormalizeReference())

	// Index management
	mcpServer.AddTool(GetListIndexesTool(), HandleListIndexes(client))
	mcpServer.AddTool(GetInvalidateIndexesTool(), HandleInvalidateIndexes(client))

	return mcpServer
}

func GetRetrieveEvidenceTool() mcp.Tool {
	return mcp.NewTool("retrieve-evidence",
		mcp.WithDescription("Retrieve the statutory evidence pack for one contract clause: anchored statute sections, state rules and model agreement passages, with grounding diagnostics"),
		mcp.WithString("clause_id", mcp.Required(), mcp.Description("Identifier of the clause")),
		mcp.WithString("jurisdiction", mcp.Required(), mcp.Description("Jurisdiction whose indexes are searched, e.g. maharashtra")),
		mcp.WithString("intent", mcp.Description("Clause intent label from the classifier; empty means unknown")),
		mcp.WithString("act", mcp.Description("Act the clause relies on")),
		mcp.WithArray("sections", mcp.WithStringItems(), mcp.Description("Expected section citations in any common style")),
		mcp.WithArray("state_rules", mcp.WithStringItems(), mcp.Description("Expected state rule citations")),
		mcp.WithString("clause_text", mcp.Description("Clause text; only a bounded snippet is used")),
		mcp.WithNumber("chunk_confidence", mcp.Min(0), mcp.Max(1), mcp.Description("Confidence of the upstream chunker")),
		mcp.WithString("index_hint", mcp.Description("Restrict similarity search to this index")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func HandleRetrieveEvidence(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req RetrieveRequest
		if err := request.BindArguments(&req); err != nil {
			return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
		}
		pack, err := client.Retrieve(ctx, req)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("retrieve evidence failed", err), nil
		}
		return mcp.NewToolResultJSON(pack)
	}
}

func GetNormalizeReferenceTool() mcp.Tool {
	return mcp.NewTool("normalize-reference",
		mcp.WithDescription("Canonicalize a statutory citation such as 'sec 18(1)(a)' or 'RULE_6_2'"),
		mcp.WithString("reference", mcp.Required(), mcp.Description("Citation to normalize")),
		mcp.WithString("kind", mcp.Enum(RefKindSection, RefKindRule, RefKindAct), mcp.Description("Citation kind; detected when omitted")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func HandleNormalizeReference() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := request.RequireString("reference")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := Normalize(request.GetString("kind", ""), ref)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("normalize failed", err), nil
		}
		return mcp.NewToolResultJSON(out)
	}
}

func GetListIndexesTool() mcp.Tool {
	return mcp.NewTool("list-indexes",
		mcp.WithDescription("List served jurisdictions and the indexes loaded for them"),
		mcp.WithString("jurisdiction", mcp.Description("Load and describe only this jurisdiction")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func HandleListIndexes(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		infos, err := client.ListIndexes(ctx, request.GetString("jurisdiction", ""))
		if err != nil {
			return mcp.NewToolResultErrorFromErr("list indexes failed", err), nil
		}
		return mcp.NewToolResultJSON(map[string]any{"jurisdictions": infos})
	}
}

func GetInvalidateIndexesTool() mcp.Tool {
	return mcp.NewTool("invalidate-indexes",
		mcp.WithDescription("Drop cached indexes so the next retrieval reloads them from the backend"),
		mcp.WithString("jurisdiction", mcp.Description("Jurisdiction to invalidate; all when omitted")),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func HandleInvalidateIndexes(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		j := request.GetString("jurisdiction", "")
		client.Invalidate(j)
		if j == "" {
			j = "*"
		}
		return mcp.NewToolResultJSON(map[string]string{"invalidated": j})
	}
}
