package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// classifyTool returns the tool definition for classify_therapy_approach
func classifyTool() mcp.Tool {
	return mcp.Tool{
		Name:        "classify_therapy_approach",
		Description: "Recommend CBT or DBT for a description of what someone is going through",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-text description of the person's situation",
				},
				"user_context": map[string]interface{}{
					"type":        "object",
					"description": "Optional details used to enrich retrieval",
					"properties": map[string]interface{}{
						"concerns": map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"type": "string"},
						},
						"goals": map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"type": "string"},
						},
						"symptoms": map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"type": "string"},
						},
						"previous_approach": map[string]interface{}{
							"type": "string",
							"enum": []string{"cbt", "dbt"},
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// ingestCorpusTool returns the tool definition for ingest_corpus
func ingestCorpusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_corpus",
		Description: "Load labelled CBT/DBT reference documents from a TOML corpus file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a .toml corpus file",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics and health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
