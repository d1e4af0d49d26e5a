package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"steward/internal/model"
	"steward/internal/orchestrator"
	"steward/internal/policy"
	"steward/internal/server"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
)

type projectsGlazedCommand struct {
	*cmds.CommandDescription
}

type projectsSettings struct {
	DBPath     string `glazed.parameter:"db"`
	PolicyPath string `glazed.parameter:"policy"`
}

func newProjectsGlazedCommand() (*projectsGlazedCommand, error) {
	return &projectsGlazedCommand{
		CommandDescription: cmds.NewCommandDescription(
			"projects",
			cmds.WithShort("List tracked projects"),
			cmds.WithLong("Show every tracked project with its status, goal and progress."),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"db",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to SQLite DB"),
					parameters.WithDefault(defaultDBPath),
				),
				parameters.NewParameterDefinition(
					"policy",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to policy file (defaults to .steward/policy.json)"),
					parameters.WithDefault(""),
				),
			),
		),
	}, nil
}

func (c *projectsGlazedCommand) Run(ctx context.Context, parsedLayers *layers.ParsedLayers) error {
	_ = ctx
	settings := &projectsSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, settings); err != nil {
		return err
	}
	service, _, err := openService(settings.DBPath, settings.PolicyPath)
	if err != nil {
		return err
	}
	defer service.Close()

	projects, err := service.Projects()
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects tracked.")
		return nil
	}
	for _, project := range projects {
		fmt.Println(formatProjectSummary(project))
	}
	return nil
}

var _ cmds.BareCommand = &projectsGlazedCommand{}

func formatProjectSummary(project model.ProjectState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-13s %s", project.ProjectID, project.Status, project.Name)
	if goal := strings.TrimSpace(project.CurrentGoal); goal != "" {
		fmt.Fprintf(&b, " goal: %s", goal)
	}
	fmt.Fprintf(&b, " (%d done", len(project.Completed))
	if project.InProgress != "" {
		fmt.Fprintf(&b, ", working on %q", project.InProgress)
	}
	b.WriteString(")")
	return b.String()
}

func describeReplyRoute(w io.Writer, route orchestrator.ReplyRoute, projectID string) {
	switch route {
	case orchestrator.ReplyRouteResumed:
		fmt.Fprintf(w, "Resumed project %s with your direction.\n", projectID)
	case orchestrator.ReplyRouteDirected:
		fmt.Fprintf(w, "Attached direction to project %s.\n", projectID)
	case orchestrator.ReplyRouteOnboarding:
		fmt.Fprintln(w, "No projects tracked; your reply starts onboarding on the next pass.")
	default:
		fmt.Fprintln(w, "Reply routed.")
	}
}

type statusGlazedCommand struct {
	*cmds.CommandDescription
}

type statusSettings struct {
	ProjectID  string `glazed.parameter:"project"`
	DBPath     string `glazed.parameter:"db"`
	PolicyPath string `glazed.parameter:"policy"`
}

func newStatusGlazedCommand() (*statusGlazedCommand, error) {
	return &statusGlazedCommand{
		CommandDescription: cmds.NewCommandDescription(
			"status",
			cmds.WithShort("Print project status"),
			cmds.WithLong("Show the detailed status report for one project, or a summary line per project when none is selected."),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"project",
					parameters.ParameterTypeString,
					parameters.WithHelp("Project identifier (empty lists every project)"),
					parameters.WithDefault(""),
				),
				parameters.NewParameterDefinition(
					"db",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to SQLite DB"),
					parameters.WithDefault(defaultDBPath),
				),
				parameters.NewParameterDefinition(
					"policy",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to policy file (defaults to .steward/policy.json)"),
					parameters.WithDefault(""),
				),
			),
		),
	}, nil
}

func (c *statusGlazedCommand) Run(ctx context.Context, parsedLayers *layers.ParsedLayers) error {
	settings := &statusSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, settings); err != nil {
		return err
	}
	service, _, err := openService(settings.DBPath, settings.PolicyPath)
	if err != nil {
		return err
	}
	defer service.Close()

	if strings.TrimSpace(settings.ProjectID) == "" {
		projects, err := service.Projects()
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects tracked.")
			return nil
		}
		for _, project := range projects {
			fmt.Println(formatProjectSummary(project))
		}
		return nil
	}

	status, err := service.Status(ctx, settings.ProjectID)
	if err != nil {
		return err
	}
	fmt.Print(status)
	return nil
}

var _ cmds.BareCommand = &statusGlazedCommand{}

type eventsGlazedCommand struct {
	*cmds.CommandDescription
}

type eventsSettings struct {
	ProjectID  string `glazed.parameter:"project"`
	Limit      int    `glazed.parameter:"limit"`
	DBPath     string `glazed.parameter:"db"`
	PolicyPath string `glazed.parameter:"policy"`
}

func newEventsGlazedCommand() (*eventsGlazedCommand, error) {
	return &eventsGlazedCommand{
		CommandDescription: cmds.NewCommandDescription(
			"events",
			cmds.WithShort("Show a project's event log"),
			cmds.WithLong("Print the most recent events recorded for a project."),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"project",
					parameters.ParameterTypeString,
					parameters.WithHelp("Project identifier"),
					parameters.WithRequired(true),
				),
				parameters.NewParameterDefinition(
					"limit",
					parameters.ParameterTypeInteger,
					parameters.WithHelp("Maximum number of events"),
					parameters.WithDefault(50),
				),
				parameters.NewParameterDefinition(
					"db",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to SQLite DB"),
					parameters.WithDefault(defaultDBPath),
				),
				parameters.NewParameterDefinition(
					"policy",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to policy file (defaults to .steward/policy.json)"),
					parameters.WithDefault(""),
				),
			),
		),
	}, nil
}

func (c *eventsGlazedCommand) Run(ctx context.Context, parsedLayers *layers.ParsedLayers) error {
	_ = ctx
	settings := &eventsSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, settings); err != nil {
		return err
	}
	service, _, err := openService(settings.DBPath, settings.PolicyPath)
	if err != nil {
		return err
	}
	defer service.Close()

	events, err := service.Events(settings.ProjectID, settings.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}
	for _, event := range events {
		line := fmt.Sprintf("%s  %s", event.CreatedAt.Format(time.RFC3339), event.EventType)
		if event.FromState != "" || event.ToState != "" {
			line += fmt.Sprintf("  %s -> %s", event.FromState, event.ToState)
		}
		if event.Message != "" {
			line += "  " + event.Message
		}
		fmt.Println(line)
	}
	return nil
}

var _ cmds.BareCommand = &eventsGlazedCommand{}

type policyInitGlazedCommand struct {
	*cmds.CommandDescription
}

type policyInitSettings struct {
	Path string `glazed.parameter:"path"`
}

func newPolicyInitGlazedCommand() (*policyInitGlazedCommand, error) {
	return &policyInitGlazedCommand{
		CommandDescription: cmds.NewCommandDescription(
			"policy-init",
			cmds.WithShort("Write a default policy file"),
			cmds.WithLong("Create a default steward policy file at the target path."),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"path",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to policy file"),
					parameters.WithDefault(policy.DefaultPolicyPath),
				),
			),
		),
	}, nil
}

func (c *policyInitGlazedCommand) Run(ctx context.Context, parsedLayers *layers.ParsedLayers) error {
	_ = ctx
	settings := &policyInitSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, settings); err != nil {
		return err
	}
	if err := policy.SaveDefault(settings.Path); err != nil {
		return err
	}
	fmt.Printf("Wrote default policy to %s\n", settings.Path)
	return nil
}

var _ cmds.BareCommand = &policyInitGlazedCommand{}

type serveGlazedCommand struct {
	*cmds.CommandDescription
}

type serveSettings struct {
	Addr            string `glazed.parameter:"addr"`
	DBPath          string `glazed.parameter:"db"`
	PolicyPath      string `glazed.parameter:"policy"`
	ShutdownTimeout string `glazed.parameter:"shutdown-timeout"`
}

func newServeGlazedCommand() (*serveGlazedCommand, error) {
	return &serveGlazedCommand{
		CommandDescription: cmds.NewCommandDescription(
			"serve",
			cmds.WithShort("Run the scheduler and admin API"),
			cmds.WithLong("Start the cycle scheduler, the reply dispatcher and the admin HTTP API."),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"addr",
					parameters.ParameterTypeString,
					parameters.WithHelp("HTTP listen address"),
					parameters.WithDefault("127.0.0.1:8674"),
				),
				parameters.NewParameterDefinition(
					"db",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to SQLite DB"),
					parameters.WithDefault(defaultDBPath),
				),
				parameters.NewParameterDefinition(
					"policy",
					parameters.ParameterTypeString,
					parameters.WithHelp("Path to policy file (defaults to .steward/policy.json)"),
					parameters.WithDefault(""),
				),
				parameters.NewParameterDefinition(
					"shutdown-timeout",
					parameters.ParameterTypeString,
					parameters.WithHelp("Graceful shutdown timeout"),
					parameters.WithDefault("10s"),
				),
			),
		),
	}, nil
}

func (c *serveGlazedCommand) Run(ctx context.Context, parsedLayers *layers.ParsedLayers) error {
	settings := &serveSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, settings); err != nil {
		return err
	}
	shutdownTimeout, err := time.ParseDuration(strings.TrimSpace(settings.ShutdownTimeout))
	if err != nil {
		return fmt.Errorf("invalid --shutdown-timeout %q: %w", settings.ShutdownTimeout, err)
	}

	runtime, err := server.NewRuntime(server.Options{
		Addr:            settings.Addr,
		DBPath:          settings.DBPath,
		PolicyPath:      settings.PolicyPath,
		ShutdownTimeout: shutdownTimeout,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("steward serve listening on %s\n", settings.Addr)
	return runtime.Run(signalCtx)
}

var _ cmds.BareCommand = &serveGlazedCommand{}
