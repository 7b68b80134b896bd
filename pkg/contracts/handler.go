package contracts

import (
	"context"

	"github.com/julienschmidt/httprouter"
)

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// HealthCheck is one backend the readiness endpoint pings.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}
