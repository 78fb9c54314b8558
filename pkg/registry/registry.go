// Package registry maps action types to their handler factories.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/protocol"
)

type Registry struct {
	logger           *slog.Logger
	handlerFactories map[models.ActionType]protocol.ActionHandlerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:           log,
		handlerFactories: make(map[models.ActionType]protocol.ActionHandlerFactory),
	}
}

func (r *Registry) RegisterHandler(factory protocol.ActionHandlerFactory) {
	r.handlerFactories[factory.Type()] = factory
}

func (r *Registry) CreateHandler(actionType models.ActionType) (protocol.ActionHandler, error) {
	factory, ok := r.handlerFactories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	return factory.Create()
}

// RegisteredTypes lists the action types with a registered handler.
func (r *Registry) RegisteredTypes() []models.ActionType {
	types := make([]models.ActionType, 0, len(r.handlerFactories))
	for actionType := range r.handlerFactories {
		types = append(types, actionType)
	}

	return types
}
