package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"steward/internal/model"
)

// budgetSafetyMargin halts the iteration loop once the remaining time budget
// drops below it, so an iteration is never started that cannot finish.
const budgetSafetyMargin = time.Minute

// ProcessProject advances a single project one cycle. Paused and
// waiting_input projects are skipped; completed projects run the one-shot
// ask-for-next-goal exchange; active projects run the iteration loop.
func (s *Service) ProcessProject(ctx context.Context, projectID string) error {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return err
	}

	switch project.Status {
	case model.ProjectStatusPaused:
		s.logger.Printf("project %s is paused; skipping", project.ProjectID)
		return nil
	case model.ProjectStatusWaitingInput:
		s.logger.Printf("project %s is waiting for input; skipping", project.ProjectID)
		return nil
	case model.ProjectStatusCompleted:
		return s.askForNextGoal(ctx, &project)
	case model.ProjectStatusActive:
		return s.processActive(ctx, &project)
	default:
		return fmt.Errorf("project %s has unknown status %q", project.ProjectID, project.Status)
	}
}

// askForNextGoal asks the human what a completed project should pursue next.
// A reply resets the goal and reactivates the project; a timeout propagates
// to the per-project boundary as a hard failure.
func (s *Service) askForNextGoal(ctx context.Context, project *model.ProjectState) error {
	question := fmt.Sprintf("Project %s finished its goal %q. What should it pursue next?",
		project.Name, project.CurrentGoal)
	if err := s.channel.Ask(ctx, question, ""); err != nil {
		return fmt.Errorf("ask next goal for %s: %w", project.ProjectID, err)
	}
	reply, err := s.channel.WaitForReply(ctx, s.replyTimeout())
	if err != nil {
		return fmt.Errorf("next goal for %s: %w", project.ProjectID, err)
	}
	goal := strings.TrimSpace(reply)
	if goal == "" {
		return fmt.Errorf("next goal for %s: empty reply", project.ProjectID)
	}

	project.CurrentGoal = goal
	project.LastActivity = time.Now()
	if err := s.transitionProject(project, model.ProjectStatusActive, "new goal: "+goal); err != nil {
		return err
	}
	return s.store.SaveProject(*project)
}

func (s *Service) processActive(ctx context.Context, project *model.ProjectState) error {
	start := time.Now()
	budget := time.Duration(project.TimeBudget) * time.Minute
	maxIterations := project.MaxIterations
	if maxIterations < 1 {
		maxIterations = 1
	}
	// Prerequisite tasks hand their slot back, so the loop is additionally
	// bounded by a total pass cap to guarantee termination.
	passCap := 3 * maxIterations

	var branches []model.IterationBranch
	iteration := 1

	for pass := 0; iteration <= maxIterations; pass++ {
		if pass >= passCap {
			s.notify(ctx, fmt.Sprintf(
				"Project %s: stopping after %d passes; prerequisite work keeps displacing the goal work.",
				project.Name, pass))
			break
		}
		if budget > 0 && pass > 0 {
			if budget-time.Since(start) < budgetSafetyMargin {
				break
			}
		}

		project.LastChecked = time.Now()
		summary, err := s.inspector.Summarize(ctx, project.RepoPath)
		if err != nil {
			return fmt.Errorf("summarize %s: %w", project.RepoPath, err)
		}

		direction := project.ConsumeDirection()
		if iteration > 1 && len(branches) > 0 {
			direction = divergenceNote(direction, branches)
		}

		decision, err := s.decider.Decide(ctx, *project, summary, direction)
		if err != nil {
			return fmt.Errorf("decide for %s: %w", project.ProjectID, err)
		}
		if decision.NeedsHuman || decision.Confidence == model.ConfidenceLow {
			question := synthesizeDecisionQuestion(*project, decision)
			if err := s.channel.Ask(ctx, question, project.CurrentGoal); err != nil {
				return err
			}
			if err := s.transitionProject(project, model.ProjectStatusWaitingInput, "decision escalated"); err != nil {
				return err
			}
			return s.store.SaveProject(*project)
		}

		var preHead string
		if maxIterations > 1 {
			preHead, err = s.vcs.Head(ctx, project.RepoPath)
			if err != nil {
				return fmt.Errorf("resolve head of %s: %w", project.RepoPath, err)
			}
		}

		project.InProgress = decision.Task.Description
		if err := s.store.SaveProject(*project); err != nil {
			return err
		}

		result, err := s.executor.Execute(ctx, decision.Task, *project)
		if err != nil {
			project.InProgress = ""
			_ = s.store.SaveProject(*project)
			return fmt.Errorf("execute %q for %s: %w", decision.Task.Description, project.ProjectID, err)
		}

		switch result.Status {
		case model.ExecutionStatusCompleted:
			if strings.TrimSpace(result.CommitID) == "" {
				if err := s.escalate(ctx, project, formatAmbiguousCompletion(*project, decision.Task, result), "completion without commit"); err != nil {
					return err
				}
				return nil
			}
			outcome, err := s.runRevisionLoop(ctx, project, decision.Task, result)
			if err != nil {
				project.InProgress = ""
				_ = s.store.SaveProject(*project)
				return err
			}
			if outcome.Escalated {
				project.InProgress = ""
				return s.store.SaveProject(*project)
			}

			record := model.TaskRecord{
				Description: decision.Task.Description,
				CompletedAt: time.Now(),
				CommitID:    outcome.CommitID,
				Revisions:   outcome.Rounds,
			}
			if maxIterations > 1 {
				record.Iteration = iteration
			}

			if !decision.Task.IsPrerequisite && iteration < maxIterations && budget > 0 && budget-time.Since(start) >= budgetSafetyMargin {
				branch, err := s.preserveIterationBranch(ctx, project, iteration, outcome, preHead, summary.Branch)
				if err != nil {
					return err
				}
				branches = append(branches, branch)
			}

			project.Completed = append(project.Completed, record)
			project.InProgress = ""
			project.LastActivity = time.Now()
			if err := s.store.SaveProject(*project); err != nil {
				return err
			}
			s.recordEvent(project.ProjectID, "task_completed", "", "", record.Description)
			s.notify(ctx, formatTaskProgress(*project, record))

			if decision.Task.IsPrerequisite {
				// Housekeeping stays on the main line and keeps its slot.
				continue
			}
			if budget == 0 {
				iteration = maxIterations + 1
				continue
			}
			iteration++

		case model.ExecutionStatusNeedsInput:
			if err := s.escalate(ctx, project, formatNeedsInput(*project, decision.Task, result), "executor needs input"); err != nil {
				return err
			}
			return nil

		case model.ExecutionStatusFailed:
			s.notify(ctx, formatExecutionFailure(*project, decision.Task, result))
			s.recordEvent(project.ProjectID, "task_failed", "", "", decision.Task.Description)
			project.InProgress = ""
			if err := s.store.SaveProject(*project); err != nil {
				return err
			}
			iteration = maxIterations + 1

		default:
			return fmt.Errorf("executor returned unknown status %q", result.Status)
		}
	}

	if len(branches) > 1 {
		s.notify(ctx, formatSessionSummary(*project, branches))
	}
	return nil
}

// escalate sends a question outward and parks the project in waiting_input.
func (s *Service) escalate(ctx context.Context, project *model.ProjectState, question string, reason string) error {
	if err := s.channel.Ask(ctx, question, project.CurrentGoal); err != nil {
		return err
	}
	project.InProgress = ""
	if err := s.transitionProject(project, model.ProjectStatusWaitingInput, reason); err != nil {
		return err
	}
	return s.store.SaveProject(*project)
}

// preserveIterationBranch captures the iteration's commit on its own branch
// and resets the working line back to where the iteration started, so later
// iterations explore from the same base.
func (s *Service) preserveIterationBranch(ctx context.Context, project *model.ProjectState, iteration int, outcome revisionOutcome, preHead string, workBranch string) (model.IterationBranch, error) {
	name := fmt.Sprintf("steward/%s/iteration-%d", project.ProjectID, iteration)
	if err := s.vcs.Branch(ctx, project.RepoPath, name); err != nil {
		return model.IterationBranch{}, err
	}
	if workBranch != "" {
		if err := s.vcs.Checkout(ctx, project.RepoPath, workBranch); err != nil {
			return model.IterationBranch{}, err
		}
	}
	if err := s.vcs.ResetHardTo(ctx, project.RepoPath, preHead); err != nil {
		return model.IterationBranch{}, err
	}
	return model.IterationBranch{
		Branch:   name,
		Summary:  firstNonEmpty(outcome.Summary, "no summary"),
		CommitID: outcome.CommitID,
	}, nil
}

func (s *Service) notify(ctx context.Context, text string) {
	if err := s.channel.Notify(ctx, text); err != nil {
		s.logger.Printf("notify failed: %v", err)
	}
}
