package session

import (
	"github.com/secassist/ai-backend/internal/entity"
	"github.com/secassist/ai-backend/internal/usecase/pipeline"
)

// toSessionDTO shapes a session view for the wire: chat sessions carry their
// transcript, evaluation sessions their grading data.
func toSessionDTO(view *pipeline.SessionView) map[string]any {
	dto := map[string]any{
		"config": view.Config,
	}

	if view.Config.SessionType == entity.SessionTypeChat {
		dto["history"] = view.History
		return dto
	}

	dto["data"] = view.Data
	return dto
}

func toSessionsDTO(views map[string]*pipeline.SessionView) map[string]any {
	dto := make(map[string]any, len(views))
	for id, view := range views {
		dto[id] = toSessionDTO(view)
	}
	return dto
}
