// Package serviceapi exposes the orchestrator operations consumed by the
// HTTP server and the CLI behind one interface, so embedders can swap in a
// remote or fake core.
package serviceapi

import (
	"context"

	"steward/internal/channel"
	"steward/internal/model"
	"steward/internal/orchestrator"
)

type AddProjectOptions = orchestrator.AddProjectOptions
type AddProjectResult = orchestrator.AddProjectResult
type CycleResult = orchestrator.CycleResult
type ReplyRoute = orchestrator.ReplyRoute

type Core interface {
	Shutdown()

	AddProject(ctx context.Context, options AddProjectOptions) (AddProjectResult, error)
	Pause(ctx context.Context, projectID string) error
	Resume(ctx context.Context, projectID string) error
	Project(projectID string) (model.ProjectState, error)
	Projects() ([]model.ProjectState, error)
	Events(projectID string, limit int) ([]model.Event, error)

	HandleReply(ctx context.Context, text string) (ReplyRoute, string, error)
	ProcessProject(ctx context.Context, projectID string) error
	Cycle(ctx context.Context) (CycleResult, error)
}

type LocalCore struct {
	service *orchestrator.Service
	bus     *channel.Bus
}

func NewLocalCore(dbPath string, policyPath string) (*LocalCore, error) {
	service, bus, err := orchestrator.NewService(dbPath, policyPath)
	if err != nil {
		return nil, err
	}
	return &LocalCore{service: service, bus: bus}, nil
}

func (l *LocalCore) Service() *orchestrator.Service { return l.service }
func (l *LocalCore) Bus() *channel.Bus              { return l.bus }

func (l *LocalCore) Shutdown() {
	if l == nil {
		return
	}
	if l.bus != nil {
		_ = l.bus.Close()
	}
	if l.service != nil {
		_ = l.service.Close()
	}
}

func (l *LocalCore) AddProject(ctx context.Context, options AddProjectOptions) (AddProjectResult, error) {
	return l.service.AddProject(ctx, options)
}

func (l *LocalCore) Pause(ctx context.Context, projectID string) error {
	return l.service.Pause(ctx, projectID)
}

func (l *LocalCore) Resume(ctx context.Context, projectID string) error {
	return l.service.Resume(ctx, projectID)
}

func (l *LocalCore) Project(projectID string) (model.ProjectState, error) {
	return l.service.Project(projectID)
}

func (l *LocalCore) Projects() ([]model.ProjectState, error) {
	return l.service.Projects()
}

func (l *LocalCore) Events(projectID string, limit int) ([]model.Event, error) {
	return l.service.Events(projectID, limit)
}

func (l *LocalCore) HandleReply(ctx context.Context, text string) (ReplyRoute, string, error) {
	return l.service.HandleReply(ctx, text)
}

func (l *LocalCore) ProcessProject(ctx context.Context, projectID string) error {
	return l.service.ProcessProject(ctx, projectID)
}

func (l *LocalCore) Cycle(ctx context.Context) (CycleResult, error) {
	return l.service.Cycle(ctx)
}

var _ Core = (*LocalCore)(nil)
