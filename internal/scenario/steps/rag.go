package steps

import (
	"context"
	"fmt"

	"github.com/agentrun/agentrun/internal/scenario/executor"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// handleRAGSearch queries the retrieval capability and binds the full
// response under the step's output_var.
func (s *Set) handleRAGSearch(ctx context.Context, step *models.Step, _ map[string]any) executor.Outcome {
	if s.caps == nil || s.caps.RAG == nil {
		return missingCapability(step, "rag")
	}
	query := step.ParamString("query")
	if query == "" {
		return executor.Fail(fmt.Errorf("step %q: params.query is required", step.ID))
	}
	topK, _ := paramInt(step, "top_k")

	result, err := s.caps.RAG.Search(ctx, query, step.ParamString("collection"), int(topK))
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: rag search: %w", step.ID, err))
	}
	return executor.Bind(map[string]any{
		"status":  result.Status,
		"results": result.Results,
	})
}
