package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-sipp-swarm/internal/logging"
	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
	"github.com/randomizedcoder/go-sipp-swarm/internal/process"
	"github.com/randomizedcoder/go-sipp-swarm/internal/sched"
	"github.com/randomizedcoder/go-sipp-swarm/internal/supervisor"
)

var (
	// ErrDuplicateID is returned when an identity is already registered.
	ErrDuplicateID = errors.New("instance id already registered")

	// ErrNotFound is returned for an unknown id.
	ErrNotFound = errors.New("instance not found")

	// ErrActive is returned when removing an instance whose worker may be alive.
	ErrActive = errors.New("instance is active")
)

// DefaultStartTimeout bounds a single start.
const DefaultStartTimeout = 10 * time.Second

// Options configures a Registry and every instance it creates.
type Options struct {
	// BinaryPath is the sipp binary.
	BinaryPath string

	// WorkDir is where sipp runs and writes telemetry.
	WorkDir string

	// Version selects the statistics schema.
	Version parser.Version

	Scheduler *sched.Scheduler
	Logger    *slog.Logger

	// Callbacks are attached to every worker.
	Callbacks supervisor.Callbacks
	Timing    supervisor.Timing

	StartTimeout time.Duration
	Verbose      bool

	// NewID generates identities. Defaults to uuid.New.
	NewID func() uuid.UUID
}

// Registry creates instances and indexes them by id.
type Registry struct {
	opts Options

	mu        sync.RWMutex
	instances map[uuid.UUID]*Instance
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "sipp"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.NewID == nil {
		opts.NewID = uuid.New
	}
	return &Registry{
		opts:      opts,
		instances: make(map[uuid.UUID]*Instance),
	}
}

// NewInstance validates spec, composes the sipp command line and
// registers a new instance under a fresh id.
func (r *Registry) NewInstance(spec Spec) (*Instance, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	id := r.opts.NewID()
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("%s-%s", scenarioLabel(spec), id.String()[:8])
	}

	runner := process.NewSIPpRunner(spec.SIPpConfig(r.opts.BinaryPath, r.opts.WorkDir))
	if err := runner.Config().Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	inst := &Instance{
		id:      id,
		spec:    spec,
		runner:  runner,
		created: time.Now(),
		opts:    &r.opts,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.instances[id] = inst

	logging.ForInstance(r.opts.Logger, spec.Name, id.String()).Info("instance_created",
		"scenario", spec.Scenario,
	)
	return inst, nil
}

func scenarioLabel(spec Spec) string {
	if spec.IsBuiltin() {
		return spec.Scenario
	}
	return process.NewSIPpRunner(&process.SIPpConfig{ScenarioFile: spec.Scenario}).BaseName()
}

// Get returns the instance with id.
func (r *Registry) Get(id uuid.UUID) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Lookup parses id and returns the instance.
func (r *Registry) Lookup(id string) (*Instance, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	inst, ok := r.Get(parsed)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inst, nil
}

// List returns all instances ordered by creation time.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].created.Equal(out[b].created) {
			return out[a].spec.Name < out[b].spec.Name
		}
		return out[a].created.Before(out[b].created)
	})
	return out
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Remove unregisters an inactive instance.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if inst.Active() {
		return fmt.Errorf("%w: %s", ErrActive, inst.spec.Name)
	}
	delete(r.instances, id)
	logging.ForInstance(r.opts.Logger, inst.spec.Name, id.String()).Info("instance_removed")
	return nil
}

// StopAll stops every active instance concurrently. A start still in
// flight is awaited first so the worker it installs is stopped too.
func (r *Registry) StopAll(ctx context.Context, force bool) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, inst := range r.List() {
		if !inst.Active() {
			continue
		}
		g.Go(func() error {
			if pending := inst.pendingStart(); pending != nil {
				// A failed start leaves nothing to stop.
				if _, err := pending.Wait(ctx); err != nil && ctx.Err() != nil {
					return fmt.Errorf("stop %s: %w", inst.spec.Name, err)
				}
			}
			w := inst.Worker()
			if w == nil || !w.Alive() {
				return nil
			}
			f, err := inst.Stop(force)
			if err != nil {
				return err
			}
			if _, err := f.Wait(ctx); err != nil {
				return fmt.Errorf("stop %s: %w", inst.spec.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Statuses returns Status for every instance in List order.
func (r *Registry) Statuses() []Status {
	list := r.List()
	out := make([]Status, 0, len(list))
	for _, inst := range list {
		out = append(out, inst.Status())
	}
	return out
}
