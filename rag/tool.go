package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/reagent-ai/reagent/tool"
)

// SearchToolName is the name the reasoning engine sees for the built-in
// retrieval tool.
const SearchToolName = "knowledge_search"

// NewSearchTool exposes an Engine to the loop as an in-process function tool.
func NewSearchTool(engine Engine) *tool.FunctionTool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Natural-language search query",
			},
			"top_k": map[string]any{
				"type":        "number",
				"description": "Maximum number of snippets to return",
			},
		},
		"required": []string{"query"},
	}
	return tool.NewFunctionTool(
		SearchToolName,
		"Search the indexed knowledge base and return the most relevant snippets with scores",
		schema,
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			topK := 0
			if v, ok := args["top_k"].(float64); ok {
				topK = int(v)
			}
			chunks, err := engine.Query(ctx, query, topK)
			if err != nil {
				return nil, fmt.Errorf("knowledge search: %w", err)
			}
			if len(chunks) == 0 {
				return "No matching knowledge found.", nil
			}
			var b strings.Builder
			for i, c := range chunks {
				fmt.Fprintf(&b, "[%d] (score %.3f) %s\n", i+1, c.Score, c.Content)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		})
}
