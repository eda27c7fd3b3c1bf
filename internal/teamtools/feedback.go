package teamtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/team"
)

// VoteTool handles the team_vote MCP tool.
type VoteTool struct {
	engine *engine.Engine
}

// NewVoteTool creates a VoteTool.
func NewVoteTool(e *engine.Engine) *VoteTool {
	return &VoteTool{engine: e}
}

// Definition returns the MCP tool definition for team_vote.
func (t *VoteTool) Definition() mcp.Tool {
	return mcp.NewTool("team_vote",
		mcp.WithDescription(
			"Vote on a team memory. A member has one vote per memory; voting again replaces it. "+
				"Returns the new success score (upvotes / votes).",
		),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Team memory ID"),
		),
		mcp.WithString("vote",
			mcp.Required(),
			mcp.Description("Vote direction"),
			mcp.Enum(string(team.Upvote), string(team.Downvote)),
		),
		memberParam(),
	)
}

// Handle processes the team_vote tool call.
func (t *VoteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "memory_id")
	if errRes != nil {
		return errRes, nil
	}
	score, err := t.engine.Vote(ctx, actorID, id, team.VoteKind(req.GetString("vote", "")))
	if err != nil {
		return errorResult("vote", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Vote recorded. Success score is now %.2f.", score)), nil
}

// ─── CommentTool ─────────────────────────────────────────────────────────────

// CommentTool handles the team_comment MCP tool.
type CommentTool struct {
	engine *engine.Engine
}

// NewCommentTool creates a CommentTool.
func NewCommentTool(e *engine.Engine) *CommentTool {
	return &CommentTool{engine: e}
}

// Definition returns the MCP tool definition for team_comment.
func (t *CommentTool) Definition() mcp.Tool {
	return mcp.NewTool("team_comment",
		mcp.WithDescription("Comment on a team memory, or reply to an existing comment."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Team memory ID"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Comment text"),
		),
		mcp.WithString("parent_id",
			mcp.Description("Comment ID to reply to"),
		),
		memberParam(),
	)
}

// Handle processes the team_comment tool call.
func (t *CommentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "memory_id")
	if errRes != nil {
		return errRes, nil
	}
	content, errRes := requireString(req, "content")
	if errRes != nil {
		return errRes, nil
	}
	c, err := t.engine.Comment(ctx, actorID, id, content, req.GetString("parent_id", ""))
	if err != nil {
		return errorResult("comment", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Comment added\nID: %s", c.ID)), nil
}

// ─── CommentsTool ────────────────────────────────────────────────────────────

// CommentsTool handles the team_comments MCP tool.
type CommentsTool struct {
	engine *engine.Engine
}

// NewCommentsTool creates a CommentsTool.
func NewCommentsTool(e *engine.Engine) *CommentsTool {
	return &CommentsTool{engine: e}
}

// Definition returns the MCP tool definition for team_comments.
func (t *CommentsTool) Definition() mcp.Tool {
	return mcp.NewTool("team_comments",
		mcp.WithDescription("Show the comments on a team memory, threaded by default."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Team memory ID"),
		),
		mcp.WithBoolean("threaded",
			mcp.Description("Nest replies under their parent (default: true)"),
		),
		memberParam(),
	)
}

// Handle processes the team_comments tool call.
func (t *CommentsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "memory_id")
	if errRes != nil {
		return errRes, nil
	}
	comments, err := t.engine.Comments(ctx, actorID, id, boolArg(req, "threaded", true))
	if err != nil {
		return errorResult("list comments", err), nil
	}
	if len(comments) == 0 {
		return mcp.NewToolResultText("No comments yet."), nil
	}
	var b strings.Builder
	writeComments(&b, comments, 0)
	return mcp.NewToolResultText(b.String()), nil
}

// ─── TrackUsageTool ──────────────────────────────────────────────────────────

// TrackUsageTool handles the team_track_usage MCP tool.
type TrackUsageTool struct {
	engine *engine.Engine
}

// NewTrackUsageTool creates a TrackUsageTool.
func NewTrackUsageTool(e *engine.Engine) *TrackUsageTool {
	return &TrackUsageTool{engine: e}
}

// Definition returns the MCP tool definition for team_track_usage.
func (t *TrackUsageTool) Definition() mcp.Tool {
	return mcp.NewTool("team_track_usage",
		mcp.WithDescription(
			"Record that a team memory was applied. Usage drives search ranking and analytics.",
		),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Team memory ID"),
		),
		mcp.WithString("context",
			mcp.Description("Where it was applied"),
		),
		mcp.WithBoolean("success",
			mcp.Description("Whether applying it worked (default: true)"),
		),
		memberParam(),
	)
}

// Handle processes the team_track_usage tool call.
func (t *TrackUsageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "memory_id")
	if errRes != nil {
		return errRes, nil
	}
	ev, err := t.engine.TrackUsage(ctx, actorID, id, req.GetString("context", ""), boolArg(req, "success", true))
	if err != nil {
		return errorResult("track usage", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Usage recorded\nID: %s", ev.ID)), nil
}
