package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"steward/internal/channel"
	"steward/internal/orchestrator"
)

const defaultDBPath = ".steward/steward.db"

func main() {
	if err := executeCLI(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openService(dbPath string, policyPath string) (*orchestrator.Service, *channel.Bus, error) {
	return orchestrator.NewService(dbPath, policyPath)
}

func addCommand(args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	var name string
	var repoPath string
	var goal string
	var timeBudget int
	var maxIterations int
	var dbPath string
	var policyPath string
	fs.StringVar(&name, "name", "", "Project name")
	fs.StringVar(&repoPath, "repo", "", "Path to the project repository")
	fs.StringVar(&goal, "goal", "", "Current goal, free text")
	fs.IntVar(&timeBudget, "time-budget", 0, "Session time budget in minutes (0 = unbounded)")
	fs.IntVar(&maxIterations, "max-iterations", 0, "Iteration attempts per session (default from policy)")
	fs.StringVar(&dbPath, "db", defaultDBPath, "Path to SQLite DB")
	fs.StringVar(&policyPath, "policy", "", "Path to policy file (defaults to .steward/policy.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	service, _, err := openService(dbPath, policyPath)
	if err != nil {
		return err
	}
	defer service.Close()

	result, err := service.AddProject(context.Background(), orchestrator.AddProjectOptions{
		Name:              name,
		RepoPath:          repoPath,
		Goal:              goal,
		TimeBudgetMinutes: timeBudget,
		MaxIterations:     maxIterations,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Added project %s.\n", result.ProjectID)
	return nil
}

func replyCommand(args []string) error {
	fs := flag.NewFlagSet("reply", flag.ContinueOnError)
	var dbPath string
	var policyPath string
	fs.StringVar(&dbPath, "db", defaultDBPath, "Path to SQLite DB")
	fs.StringVar(&policyPath, "policy", "", "Path to policy file (defaults to .steward/policy.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		return fmt.Errorf("reply text is required")
	}

	service, bus, err := openService(dbPath, policyPath)
	if err != nil {
		return err
	}
	defer service.Close()

	// With Redis configured the reply travels to the running serve process;
	// otherwise route it directly against the local store.
	if strings.TrimSpace(service.Config().Channel.RedisURL) != "" {
		if err := bus.InjectReply(context.Background(), text); err != nil {
			return err
		}
		fmt.Println("Reply published.")
		return nil
	}
	route, projectID, err := service.HandleReply(context.Background(), text)
	if err != nil {
		return err
	}
	describeReplyRoute(os.Stdout, route, projectID)
	return nil
}

func pauseCommand(args []string) error {
	return projectStatusCommand("pause", args, func(service *orchestrator.Service, projectID string) error {
		if err := service.Pause(context.Background(), projectID); err != nil {
			return err
		}
		fmt.Printf("Project %s paused.\n", projectID)
		return nil
	})
}

func resumeCommand(args []string) error {
	return projectStatusCommand("resume", args, func(service *orchestrator.Service, projectID string) error {
		if err := service.Resume(context.Background(), projectID); err != nil {
			return err
		}
		fmt.Printf("Project %s resumed.\n", projectID)
		return nil
	})
}

func processCommand(args []string) error {
	return projectStatusCommand("process", args, func(service *orchestrator.Service, projectID string) error {
		if err := service.ProcessProject(context.Background(), projectID); err != nil {
			return err
		}
		fmt.Printf("Project %s processed.\n", projectID)
		return nil
	})
}

func projectStatusCommand(name string, args []string, run func(*orchestrator.Service, string) error) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var projectID string
	var dbPath string
	var policyPath string
	fs.StringVar(&projectID, "project", "", "Project identifier")
	fs.StringVar(&dbPath, "db", defaultDBPath, "Path to SQLite DB")
	fs.StringVar(&policyPath, "policy", "", "Path to policy file (defaults to .steward/policy.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(projectID) == "" {
		return fmt.Errorf("--project is required")
	}

	service, _, err := openService(dbPath, policyPath)
	if err != nil {
		return err
	}
	defer service.Close()
	return run(service, projectID)
}

func cycleCommand(args []string) error {
	fs := flag.NewFlagSet("cycle", flag.ContinueOnError)
	var dbPath string
	var policyPath string
	fs.StringVar(&dbPath, "db", defaultDBPath, "Path to SQLite DB")
	fs.StringVar(&policyPath, "policy", "", "Path to policy file (defaults to .steward/policy.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	service, _, err := openService(dbPath, policyPath)
	if err != nil {
		return err
	}
	defer service.Close()

	result, err := service.Cycle(context.Background())
	if err != nil {
		return err
	}
	if result.Onboarded != "" {
		fmt.Printf("Onboarded project %s.\n", result.Onboarded)
	}
	fmt.Printf("Processed %d project(s).\n", len(result.Processed))
	for projectID, failure := range result.Failed {
		fmt.Printf("  %s failed: %s\n", projectID, failure)
	}
	return nil
}

func printUsage() {
	fmt.Println(`steward: autonomous work-dispatch orchestrator

Usage:
  steward <command> [flags]

Commands:
  serve          Run the scheduler, reply dispatcher and admin API
  cycle          Run one orchestration pass and exit
  add            Track a new project
  status         Print project status
  projects       List tracked projects
  events         Show a project's event log
  reply          Send a human reply to the orchestrator
  pause          Pause a project
  resume         Resume a paused project
  process        Process a single project now
  policy-init    Write a default policy file

Run "steward <command> --help" for command flags.`)
}
