// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/docuflow/docuflow/pkg/models"

	"github.com/docuflow/docuflow/pkg/actions/assign"
	"github.com/docuflow/docuflow/pkg/actions/escalate"
	"github.com/docuflow/docuflow/pkg/actions/notify"
	"github.com/docuflow/docuflow/pkg/actions/route"
	"github.com/docuflow/docuflow/pkg/actions/setfield"
	"github.com/docuflow/docuflow/pkg/actions/skipstep"
	"github.com/docuflow/docuflow/pkg/actions/terminate"
	"github.com/docuflow/docuflow/pkg/protocol"
	"github.com/docuflow/docuflow/pkg/registry"
)

// NewRegistry builds the action handler registry with every built-in handler
// wired to its collaborators.
func NewRegistry(
	log *slog.Logger,
	engine protocol.WorkflowEngine,
	notifier protocol.Notifier,
	directory protocol.Directory,
	raiser protocol.EscalationRaiser,
) *registry.Registry {
	reg := registry.NewRegistry(log)

	reg.RegisterHandler(route.NewHandlerFactory(engine))
	reg.RegisterHandler(assign.NewHandlerFactory(engine, directory))
	reg.RegisterHandler(notify.NewHandlerFactory(notifier))
	reg.RegisterHandler(setfield.NewHandlerFactory(engine))
	reg.RegisterHandler(skipstep.NewHandlerFactory(engine))
	reg.RegisterHandler(escalate.NewHandlerFactory(raiser))
	reg.RegisterHandler(terminate.NewHandlerFactory(engine))

	return reg
}

// RaiserProxy breaks the construction cycle between the handler registry and
// the escalation scheduler: the registry is built first with the proxy, then
// the scheduler (which needs the registry) is bound as the target.
type RaiserProxy struct {
	Target protocol.EscalationRaiser
}

func (p *RaiserProxy) Raise(ctx context.Context, ruleID, stepInstanceID, eventID string) (*models.EscalationInstance, error) {
	if p.Target == nil {
		return nil, errors.New("escalation raiser is not bound")
	}

	return p.Target.Raise(ctx, ruleID, stepInstanceID, eventID)
}
