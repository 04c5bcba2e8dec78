// Package convomesh provides a high-level façade over the orchestration core
// (routing engine, response pipeline, tool registry, session stores) for
// building multi-turn, route-driven conversations. Most applications interact
// with this package by:
//  1. Creating a Mesh via New() with routes and a model
//  2. Registering tools
//  3. Calling Respond (synchronous) or RespondStream (streaming) per turn
//
// All defaults are safe for local development and testing; production
// deployments typically supply durable store implementations and a structured
// logger.
package convomesh

import (
	"context"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/metrics"
	"github.com/convomesh/convomesh/model"
	"github.com/convomesh/convomesh/pipeline"
	"github.com/convomesh/convomesh/route"
	"github.com/convomesh/convomesh/routing"
	"github.com/convomesh/convomesh/session"
	"github.com/convomesh/convomesh/tool"
)

// Version is the current release of the module.
const Version = "0.1.0"

// Options configures a Mesh instance.
type Options struct {
	// Profile holds agent-level rules, guidelines, and default tools.
	Profile pipeline.Profile

	// Scorer ranks eligible routes. Defaults to a model-backed scorer using
	// the same model that generates replies.
	Scorer routing.Scorer

	// MinConfidence rejects scored routes below this threshold.
	MinConfidence float64

	// MaxToolLoops caps follow-up tool rounds per turn.
	MaxToolLoops int

	// AutoSave persists session and transcript at turn finalize.
	AutoSave bool

	// Stores default to a shared in-memory implementation.
	SessionStore core.SessionStore
	MessageStore core.MessageStore

	// Logger defaults to NoOp.
	Logger logging.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// Mesh is the high-level façade aggregating the pipeline and its services.
type Mesh struct {
	opts     Options
	registry *tool.Registry
	engine   *routing.Engine
	pipeline *pipeline.Pipeline
}

// New assembles a Mesh from routes and a model. Tools referenced by route
// definitions must be registered before the first turn; ValidateTools can be
// used to check them eagerly.
func New(routes []*route.Route, mdl model.Model, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		MaxToolLoops: pipeline.DefaultMaxToolLoops,
		AutoSave:     true,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SessionStore == nil || opts.MessageStore == nil {
		mem := session.NewInMemoryStore()
		if opts.SessionStore == nil {
			opts.SessionStore = mem
		}
		if opts.MessageStore == nil {
			opts.MessageStore = mem
		}
	}
	if opts.Scorer == nil && mdl != nil {
		opts.Scorer = routing.NewModelScorer(mdl, opts.Logger)
	}

	engine, err := routing.NewEngine(routes, opts.Scorer, func(o *routing.Options) {
		o.MinConfidence = opts.MinConfidence
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	registry := tool.NewRegistry()
	registry.MustRegister(tool.NewTransitionTool())

	p, err := pipeline.New(engine, mdl, registry, opts.SessionStore, opts.MessageStore,
		func(o *pipeline.Options) {
			o.Profile = opts.Profile
			o.MaxToolLoops = opts.MaxToolLoops
			o.AutoSave = opts.AutoSave
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics
		})
	if err != nil {
		return nil, err
	}

	return &Mesh{
		opts:     opts,
		registry: registry,
		engine:   engine,
		pipeline: p,
	}, nil
}

// RegisterTool adds a tool to the registry, failing on duplicates.
func (m *Mesh) RegisterTool(t tool.Tool) error { return m.registry.Register(t) }

// MustRegisterTools adds tools to the registry, panicking on error. Intended
// for program setup.
func (m *Mesh) MustRegisterTools(tools ...tool.Tool) { m.registry.MustRegister(tools...) }

// ValidateTools checks that every tool referenced by a route exists in the
// registry, catching configuration typos before the first turn.
func (m *Mesh) ValidateTools() error {
	known := m.registry.NameSet()
	for _, r := range m.engine.Routes() {
		if err := r.ValidateTools(known); err != nil {
			return err
		}
	}
	return nil
}

// Respond runs one synchronous conversation turn.
func (m *Mesh) Respond(ctx context.Context, sessionID, userMessage string) (*pipeline.Result, error) {
	return m.pipeline.Respond(ctx, sessionID, userMessage)
}

// RespondStream runs one turn, yielding text deltas as they arrive. The final
// chunk carries the completed result or the turn error.
func (m *Mesh) RespondStream(ctx context.Context, sessionID, userMessage string) <-chan pipeline.Chunk {
	return m.pipeline.RespondStream(ctx, sessionID, userMessage)
}

// Session returns the persisted session snapshot for an id.
func (m *Mesh) Session(ctx context.Context, sessionID string) (*core.Session, error) {
	return m.opts.SessionStore.Get(ctx, sessionID)
}

// History returns the persisted conversation history for a session.
func (m *Mesh) History(ctx context.Context, sessionID string) ([]core.Event, error) {
	return m.opts.MessageStore.List(ctx, sessionID)
}

// Routes exposes the configured routes in declaration order.
func (m *Mesh) Routes() []*route.Route { return m.engine.Routes() }
