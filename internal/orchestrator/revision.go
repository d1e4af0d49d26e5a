package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"steward/internal/model"
	"steward/internal/policy"
)

// ErrSafetyCapExceeded marks a revision loop that hit its round bound. It is
// always resolved by forced escalation, never surfaced silently.
var ErrSafetyCapExceeded = errors.New("revision safety cap exceeded")

// revisionOutcome is what the revision loop hands back to the iteration
// loop: either a reviewed commit or an escalation that parked the project.
type revisionOutcome struct {
	Escalated    bool
	CommitID     string
	Summary      string
	ChangedFiles []string
	Rounds       int
}

// runRevisionLoop negotiates a single executed task to an approved state.
// It is bounded by revision.max_rounds and always leaves the project in a
// well-defined state: a finalized outcome or waiting_input.
func (s *Service) runRevisionLoop(ctx context.Context, project *model.ProjectState, task model.TaskProposal, initial model.ExecutionResult) (revisionOutcome, error) {
	maxRounds := s.cfg.Revision.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 6
	}

	current := initial
	rounds := 0
	var history []model.Review

	for {
		commit, err := s.inspector.Diff(ctx, project.RepoPath, current.CommitID)
		if err != nil {
			return revisionOutcome{}, fmt.Errorf("diff commit %s: %w", current.CommitID, err)
		}

		review, err := s.reviewer.Review(ctx, *project, task.Description, commit, history)
		if err != nil {
			return s.handleReviewFailure(ctx, project, task, current, rounds, err)
		}

		switch review.Decision {
		case model.ReviewDecisionApprove:
			return revisionOutcome{
				CommitID:     current.CommitID,
				Summary:      firstNonEmpty(review.Summary, current.Summary, task.Description),
				ChangedFiles: current.ChangedFiles,
				Rounds:       rounds,
			}, nil

		case model.ReviewDecisionEscalate:
			question := firstNonEmpty(review.Question,
				fmt.Sprintf("The reviewer escalated %q and needs your call.", task.Description))
			summary := firstNonEmpty(review.Summary, current.Summary)
			if err := s.channel.Ask(ctx, fmt.Sprintf("Project %s: %s", project.Name, question), summary); err != nil {
				return revisionOutcome{}, err
			}
			if err := s.transitionProject(project, model.ProjectStatusWaitingInput, "review escalated"); err != nil {
				return revisionOutcome{}, err
			}
			return revisionOutcome{Escalated: true, Rounds: rounds}, nil

		case model.ReviewDecisionRevise:
			rounds++
			history = append(history, review)
			if rounds >= maxRounds {
				question := fmt.Sprintf(
					"Project %s: task %q is still unapproved after %d revision rounds (%v). Accept the current state at commit %s, or give direction.",
					project.Name, task.Description, rounds, ErrSafetyCapExceeded, current.CommitID)
				if err := s.channel.Ask(ctx, question, firstNonEmpty(review.Feedback, current.Summary)); err != nil {
					return revisionOutcome{}, err
				}
				if err := s.transitionProject(project, model.ProjectStatusWaitingInput, ErrSafetyCapExceeded.Error()); err != nil {
					return revisionOutcome{}, err
				}
				return revisionOutcome{Escalated: true, Rounds: rounds}, nil
			}

			s.notify(ctx, fmt.Sprintf("Project %s: revising %q (round %d): %s",
				project.Name, task.Description, rounds, firstNonEmpty(review.Feedback, review.Summary, "itemized feedback")))

			next, err := s.executor.Revise(ctx, review, task, *project)
			if err != nil {
				return revisionOutcome{}, fmt.Errorf("revise %q round %d: %w", task.Description, rounds, err)
			}
			if next.Status != model.ExecutionStatusCompleted || strings.TrimSpace(next.CommitID) == "" {
				question := fmt.Sprintf(
					"Project %s: revision round %d of %q did not produce a clean commit (status %s). How should this proceed?",
					project.Name, rounds, task.Description, next.Status)
				if err := s.channel.Ask(ctx, question, firstNonEmpty(next.Summary, review.Feedback)); err != nil {
					return revisionOutcome{}, err
				}
				if err := s.transitionProject(project, model.ProjectStatusWaitingInput, "revision produced no commit"); err != nil {
					return revisionOutcome{}, err
				}
				return revisionOutcome{Escalated: true, Rounds: rounds}, nil
			}
			current = next

		default:
			return revisionOutcome{}, fmt.Errorf("reviewer returned unknown decision %q", review.Decision)
		}
	}
}

// handleReviewFailure applies revision.review_failure_mode once the review
// agent has exhausted its retries. The default accepts the change with a
// synthetic summary so one broken reviewer cannot block all progress.
func (s *Service) handleReviewFailure(ctx context.Context, project *model.ProjectState, task model.TaskProposal, current model.ExecutionResult, rounds int, reviewErr error) (revisionOutcome, error) {
	if s.cfg.Revision.ReviewFailureMode == policy.ReviewFailureModeEscalate {
		question := fmt.Sprintf(
			"Project %s: the reviewer failed while judging %q (%s). Accept commit %s unreviewed, or give direction.",
			project.Name, task.Description, compactErrorText(reviewErr), current.CommitID)
		if err := s.channel.Ask(ctx, question, current.Summary); err != nil {
			return revisionOutcome{}, err
		}
		if err := s.transitionProject(project, model.ProjectStatusWaitingInput, "review failed"); err != nil {
			return revisionOutcome{}, err
		}
		return revisionOutcome{Escalated: true, Rounds: rounds}, nil
	}

	s.logger.Printf("review of %q failed, accepting unreviewed: %v", task.Description, reviewErr)
	s.recordEvent(project.ProjectID, "review_failed", "", "", compactErrorText(reviewErr))
	return revisionOutcome{
		CommitID:     current.CommitID,
		Summary:      "review failed; change accepted without review",
		ChangedFiles: current.ChangedFiles,
		Rounds:       rounds,
	}, nil
}
