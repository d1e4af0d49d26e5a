package hsm

import "steward/internal/model"

// The core only walks active->waiting_input, waiting_input->active and
// completed->active. The pause edges exist for the administrative surface.
var projectTransitions = map[model.ProjectStatus]map[model.ProjectStatus]bool{
	model.ProjectStatusActive: {
		model.ProjectStatusWaitingInput: true,
		model.ProjectStatusPaused:       true,
		model.ProjectStatusCompleted:    true,
	},
	model.ProjectStatusWaitingInput: {
		model.ProjectStatusActive: true,
		model.ProjectStatusPaused: true,
	},
	model.ProjectStatusPaused: {
		model.ProjectStatusActive: true,
	},
	model.ProjectStatusCompleted: {
		model.ProjectStatusActive: true,
	},
}

func CanTransitionProject(from model.ProjectStatus, to model.ProjectStatus) bool {
	if from == to {
		return true
	}
	return projectTransitions[from][to]
}
