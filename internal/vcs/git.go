package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"steward/internal/model"
)

// Git runs repository operations by shelling out to the git binary. It
// satisfies agents.Inspector so the decision step can read repository state
// without a dedicated agent.
type Git struct{}

func NewGit() *Git {
	return &Git{}
}

func (g *Git) Head(ctx context.Context, repoPath string) (string, error) {
	return runGitCommand(ctx, repoPath, "rev-parse", "HEAD")
}

func (g *Git) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	return runGitCommand(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD")
}

// Branch creates or resets a branch at the current HEAD and checks it out.
func (g *Git) Branch(ctx context.Context, repoPath string, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("branch name is required")
	}
	_, err := runGitCommand(ctx, repoPath, "checkout", "-B", name)
	return err
}

func (g *Git) Checkout(ctx context.Context, repoPath string, ref string) error {
	_, err := runGitCommand(ctx, repoPath, "checkout", ref)
	return err
}

// ResetHardTo moves the working tree back to the given commit, discarding
// everything after it.
func (g *Git) ResetHardTo(ctx context.Context, repoPath string, commitID string) error {
	if strings.TrimSpace(commitID) == "" {
		return fmt.Errorf("commit id is required")
	}
	_, err := runGitCommand(ctx, repoPath, "reset", "--hard", commitID)
	return err
}

func (g *Git) Summarize(ctx context.Context, repoPath string) (model.RepoSummary, error) {
	branch, err := g.CurrentBranch(ctx, repoPath)
	if err != nil {
		return model.RepoSummary{}, err
	}
	logOut, err := runGitCommand(ctx, repoPath, "log", "-n", "10", "--format=%h %s")
	if err != nil {
		// A freshly initialized repository has no commits yet.
		logOut = ""
	}
	statusOut, err := runGitCommand(ctx, repoPath, "status", "--porcelain")
	if err != nil {
		return model.RepoSummary{}, err
	}

	summary := model.RepoSummary{
		Branch: branch,
		Dirty:  strings.TrimSpace(statusOut) != "",
	}
	for _, line := range strings.Split(logOut, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			summary.RecentCommits = append(summary.RecentCommits, line)
		}
	}
	for _, line := range strings.Split(statusOut, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			summary.ChangedFiles = append(summary.ChangedFiles, fields[len(fields)-1])
		}
	}
	if len(summary.RecentCommits) > 0 {
		summary.Summary = summary.RecentCommits[0]
	}
	return summary, nil
}

func (g *Git) Diff(ctx context.Context, repoPath string, commitID string) (model.CommitInfo, error) {
	if strings.TrimSpace(commitID) == "" {
		return model.CommitInfo{}, fmt.Errorf("commit id is required")
	}
	diffText, err := runGitCommand(ctx, repoPath, "show", "--format=%h %s", commitID)
	if err != nil {
		return model.CommitInfo{}, err
	}
	nameOut, err := runGitCommand(ctx, repoPath, "show", "--name-only", "--format=", commitID)
	if err != nil {
		return model.CommitInfo{}, err
	}

	info := model.CommitInfo{CommitID: commitID, DiffText: diffText}
	for _, line := range strings.Split(nameOut, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			info.ChangedFiles = append(info.ChangedFiles, line)
		}
	}
	return info, nil
}

func runGitCommand(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmdArgs := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text == "" {
			text = err.Error()
		}
		return "", fmt.Errorf("git %s failed in %s: %s", strings.Join(args, " "), repoPath, text)
	}
	return text, nil
}
