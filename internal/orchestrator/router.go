package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"steward/internal/model"
)

type ReplyRoute string

const (
	// ReplyRouteResumed resumed the most recently active waiting_input project.
	ReplyRouteResumed ReplyRoute = "resumed"
	// ReplyRouteDirected attached the reply as pending direction on an active project.
	ReplyRouteDirected ReplyRoute = "directed"
	// ReplyRouteOnboarding stashed the reply as the next onboarding goal.
	ReplyRouteOnboarding ReplyRoute = "onboarding"
)

// HandleReply routes an unsolicited human reply: resume a waiting project,
// steer an active one, or start onboarding. Each route requests an
// immediate scheduler pass.
func (s *Service) HandleReply(ctx context.Context, text string) (ReplyRoute, string, error) {
	_ = ctx
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", fmt.Errorf("empty reply")
	}

	waitingIDs, err := s.store.ListProjectIDsByStatus(model.ProjectStatusWaitingInput)
	if err != nil {
		return "", "", err
	}
	if len(waitingIDs) > 0 {
		projectID := waitingIDs[0]
		project, err := s.store.GetProject(projectID)
		if err != nil {
			return "", "", err
		}
		project.PendingDirection = text
		if err := s.transitionProject(&project, model.ProjectStatusActive, "human reply received"); err != nil {
			return "", "", err
		}
		if err := s.store.SaveProject(project); err != nil {
			return "", "", err
		}
		s.requestPass()
		return ReplyRouteResumed, projectID, nil
	}

	activeIDs, err := s.store.ListProjectIDsByStatus(model.ProjectStatusActive)
	if err != nil {
		return "", "", err
	}
	if len(activeIDs) > 0 {
		projectID := activeIDs[0]
		project, err := s.store.GetProject(projectID)
		if err != nil {
			return "", "", err
		}
		project.PendingDirection = text
		if err := s.store.SaveProject(project); err != nil {
			return "", "", err
		}
		s.recordEvent(projectID, "direction_attached", "", "", text)
		s.requestPass()
		return ReplyRouteDirected, projectID, nil
	}

	s.stashOnboardingGoal(text)
	s.requestPass()
	return ReplyRouteOnboarding, "", nil
}

func (s *Service) stashOnboardingGoal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingGoal = strings.TrimSpace(text)
}

func (s *Service) takeOnboardingGoal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal := s.pendingGoal
	s.pendingGoal = ""
	return goal
}
