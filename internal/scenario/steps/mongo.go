package steps

import (
	"context"
	"fmt"

	"github.com/agentrun/agentrun/internal/scenario/executor"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// The mongo_* handlers call the document-store capability and bind the
// operation result (inserted id, found document, modified count, deleted
// count) under the step's output_var.

func (s *Set) handleMongoInsertOne(ctx context.Context, step *models.Step, _ map[string]any) executor.Outcome {
	if s.caps == nil || s.caps.Store == nil {
		return missingCapability(step, "document store")
	}
	collection := step.ParamString("collection")
	document, hasDoc := paramMap(step, "document")
	if collection == "" || !hasDoc {
		return executor.Fail(fmt.Errorf("step %q: params.collection and params.document are required", step.ID))
	}

	insertedID, err := s.caps.Store.InsertOne(ctx, collection, document)
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: %w", step.ID, err))
	}
	return executor.Bind(map[string]any{
		"status":      "success",
		"inserted_id": insertedID,
	})
}

func (s *Set) handleMongoFindOne(ctx context.Context, step *models.Step, _ map[string]any) executor.Outcome {
	if s.caps == nil || s.caps.Store == nil {
		return missingCapability(step, "document store")
	}
	collection := step.ParamString("collection")
	filter, hasFilter := paramMap(step, "filter")
	if collection == "" || !hasFilter {
		return executor.Fail(fmt.Errorf("step %q: params.collection and params.filter are required", step.ID))
	}

	document, err := s.caps.Store.FindOne(ctx, collection, filter)
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: %w", step.ID, err))
	}
	result := map[string]any{"status": "success", "found": document != nil}
	if document != nil {
		result["document"] = document
	}
	return executor.Bind(result)
}

func (s *Set) handleMongoUpdateOne(ctx context.Context, step *models.Step, _ map[string]any) executor.Outcome {
	if s.caps == nil || s.caps.Store == nil {
		return missingCapability(step, "document store")
	}
	collection := step.ParamString("collection")
	filter, hasFilter := paramMap(step, "filter")
	update, hasUpdate := paramMap(step, "update")
	if collection == "" || !hasFilter || !hasUpdate {
		return executor.Fail(fmt.Errorf("step %q: params.collection, params.filter and params.update are required", step.ID))
	}

	modified, err := s.caps.Store.UpdateOne(ctx, collection, filter, update)
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: %w", step.ID, err))
	}
	return executor.Bind(map[string]any{
		"status":         "success",
		"modified_count": modified,
	})
}

func (s *Set) handleMongoDeleteOne(ctx context.Context, step *models.Step, _ map[string]any) executor.Outcome {
	if s.caps == nil || s.caps.Store == nil {
		return missingCapability(step, "document store")
	}
	collection := step.ParamString("collection")
	filter, hasFilter := paramMap(step, "filter")
	if collection == "" || !hasFilter {
		return executor.Fail(fmt.Errorf("step %q: params.collection and params.filter are required", step.ID))
	}

	deleted, err := s.caps.Store.DeleteOne(ctx, collection, filter)
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: %w", step.ID, err))
	}
	return executor.Bind(map[string]any{
		"status":        "success",
		"deleted_count": deleted,
	})
}
