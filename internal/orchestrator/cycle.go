package orchestrator

import (
	"context"
	"fmt"

	"steward/internal/model"
)

type CycleResult struct {
	Processed []string          `json:"processed,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
	Onboarded string            `json:"onboarded,omitempty"`
}

// Cycle runs one orchestration pass: onboard when nothing is tracked,
// otherwise process each active project independently. Store errors abort
// the cycle; per-project failures are isolated and reported.
func (s *Service) Cycle(ctx context.Context) (CycleResult, error) {
	result := CycleResult{Failed: map[string]string{}}

	activeIDs, err := s.store.ListProjectIDsByStatus(model.ProjectStatusActive)
	if err != nil {
		return result, err
	}
	waitingIDs, err := s.store.ListProjectIDsByStatus(model.ProjectStatusWaitingInput)
	if err != nil {
		return result, err
	}

	if len(activeIDs) == 0 && len(waitingIDs) == 0 {
		projectID, err := s.runOnboarding(ctx)
		if err != nil {
			return result, fmt.Errorf("onboarding: %w", err)
		}
		result.Onboarded = projectID
		activeIDs = []string{projectID}
	}

	for _, projectID := range activeIDs {
		if err := s.processProjectSafely(ctx, projectID); err != nil {
			result.Failed[projectID] = compactErrorText(err)
			s.logger.Printf("project %s failed: %v", projectID, err)
			s.recordEvent(projectID, "processing_failed", "", "", compactErrorText(err))
			s.notify(ctx, fmt.Sprintf("Processing project %s failed: %s", projectID, compactErrorText(err)))
			continue
		}
		result.Processed = append(result.Processed, projectID)
	}
	return result, nil
}

// processProjectSafely is the per-project error boundary: a panic in one
// project's processing never aborts the rest of the cycle.
func (s *Service) processProjectSafely(ctx context.Context, projectID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing project %s: %v", projectID, r)
		}
	}()
	return s.ProcessProject(ctx, projectID)
}
