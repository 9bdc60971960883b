// Package extension provides a Forge extension entry point for the
// authorization manager.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/Bitconch/authz"
	"github.com/Bitconch/authz/api"
	"github.com/Bitconch/authz/plugin"
	"github.com/Bitconch/authz/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "authz"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "BUS chain authorization manager (permission graph, links, authority checks)"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the authorization manager as a Forge extension.
type Extension struct {
	config     Config
	mgr        *authz.Manager
	apiHandler *api.API
	logger     *slog.Logger
	mgrOpts    []authz.Option
	plugins    []plugin.Plugin
}

// New creates an authorization Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Manager returns the underlying authorization manager.
func (e *Extension) Manager() *authz.Manager { return e.mgr }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It initializes the manager,
// registers it in the DI container, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	// Register the manager in the DI container.
	if err := vessel.Provide(fapp.Container(), func() (*authz.Manager, error) {
		return e.mgr, nil
	}); err != nil {
		return fmt.Errorf("authz: register manager in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Build manager options.
	opts := make([]authz.Option, 0, len(e.mgrOpts)+len(e.plugins)+2)
	opts = append(opts, authz.WithLogger(logger))

	// Use a store from the DI container when one is registered; a store
	// passed via options (appended below) takes precedence over it.
	if s, err := forge.Inject[store.Store](fapp.Container()); err == nil {
		opts = append(opts, authz.WithStore(s))
	}

	// Config limit overrides.
	if e.config.MaxAuthorityDepth > 0 || e.config.MaxTransactionDelaySec > 0 {
		cfg := authz.DefaultConfig()
		if e.config.MaxAuthorityDepth > 0 {
			cfg.MaxAuthorityDepth = e.config.MaxAuthorityDepth
		}
		if e.config.MaxTransactionDelaySec > 0 {
			cfg.MaxTransactionDelay = time.Duration(e.config.MaxTransactionDelaySec) * time.Second
		}
		opts = append(opts, authz.WithConfig(cfg))
	}

	// Append user-provided options (may override store).
	opts = append(opts, e.mgrOpts...)

	// Register extension hooks.
	for _, x := range e.plugins {
		opts = append(opts, authz.WithPlugin(x))
	}

	mgr, err := authz.NewManager(opts...)
	if err != nil {
		return fmt.Errorf("authz: create manager: %w", err)
	}
	e.mgr = mgr

	// Create API handler.
	e.apiHandler = api.New(mgr, fapp.Router())

	// Register HTTP routes unless disabled.
	if !e.config.DisableRoutes {
		if err := e.apiHandler.RegisterRoutes(fapp.Router()); err != nil {
			return fmt.Errorf("authz: register routes: %w", err)
		}
	}

	return nil
}

// Start runs migrations unless disabled.
func (e *Extension) Start(ctx context.Context) error {
	if e.mgr == nil {
		return errors.New("authz: extension not initialized")
	}

	if !e.config.DisableMigrate {
		s := e.mgr.Store()
		if s != nil {
			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("authz: migration failed: %w", err)
			}
		}
	}

	return nil
}

// Stop gracefully shuts down the extension.
func (e *Extension) Stop(_ context.Context) error { return nil }

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.mgr == nil {
		return errors.New("authz: extension not initialized")
	}
	s := e.mgr.Store()
	if s == nil {
		return errors.New("authz: no store configured")
	}
	return s.Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all authorization API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
