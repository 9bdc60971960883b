// Package api provides HTTP handlers for the authorization manager:
// transaction and permission checks, required-key computation, and
// read-only permission graph queries for wallets and explorers.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/Bitconch/authz"
)

// API wires all authorization HTTP handlers together.
type API struct {
	mgr    *authz.Manager
	router forge.Router
}

// New creates an API from a Manager and a Forge router.
func New(mgr *authz.Manager, router forge.Router) *API {
	return &API{mgr: mgr, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	if err := a.RegisterRoutes(a.router); err != nil {
		panic("authz: register routes: " + err.Error())
	}
	return a.router.Handler()
}

// RegisterRoutes registers all API routes into the given Forge router.
func (a *API) RegisterRoutes(router forge.Router) error {
	registerers := []func(forge.Router) error{
		a.registerCheckRoutes,
		a.registerQueryRoutes,
	}
	for _, fn := range registerers {
		if err := fn(router); err != nil {
			return err
		}
	}
	return nil
}
