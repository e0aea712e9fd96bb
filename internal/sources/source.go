// Package sources defines how raw observations reach the pipeline and keeps
// the set of configured acquisition adapters and file readers.
package sources

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chrissnell/fluxprep/internal/types"
)

// Source delivers the raw observations of one variable over [from, to).
// Observation timestamps are expressed in the run's canonical location.
type Source interface {
	Fetch(ctx context.Context, v types.Variable, from, to time.Time) ([]types.Observation, error)
}

// Registry maps configured source names to their implementation
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds or replaces the source called name
func (r *Registry) Register(name string, s Source) {
	r.sources[name] = s
}

// Get returns the source called name
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("no source named %q is configured", name)
	}
	return s, nil
}

// Names returns the registered source names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fetch looks up the variable's source and fetches from it. Any failure is
// reported as an AcquisitionError for the variable.
func (r *Registry) Fetch(ctx context.Context, v types.Variable, from, to time.Time) ([]types.Observation, error) {
	s, err := r.Get(v.Source)
	if err != nil {
		return nil, &types.AcquisitionError{Variable: v.Name, Err: err}
	}
	obs, err := s.Fetch(ctx, v, from, to)
	if err != nil {
		return nil, &types.AcquisitionError{Variable: v.Name, Err: err}
	}
	return obs, nil
}

// Static serves observations held in memory. It backs tests and replays of
// previously exported data.
type Static map[string][]types.Observation

// Fetch implements Source
func (s Static) Fetch(_ context.Context, v types.Variable, from, to time.Time) ([]types.Observation, error) {
	key := fieldOf(v)
	all, ok := s[key]
	if !ok {
		return nil, fmt.Errorf("no data for field %q", key)
	}
	return Between(all, from, to), nil
}

// Between returns the observations with from <= t < to
func Between(obs []types.Observation, from, to time.Time) []types.Observation {
	out := make([]types.Observation, 0, len(obs))
	for _, o := range obs {
		if !o.Time.Before(from) && o.Time.Before(to) {
			out = append(out, o)
		}
	}
	return out
}

// BatchSource is a Source that can serve several fields with one request
type BatchSource interface {
	Source
	FetchBatch(ctx context.Context, fields []string, from, to time.Time) (map[string][]types.Observation, error)
}

// Request is the range one variable is fetched over
type Request struct {
	Variable types.Variable
	From     time.Time
	To       time.Time
}

// Prefetched serves variables from batches fetched up front and passes every
// other variable on to the registry
type Prefetched struct {
	registry *Registry
	obs      map[string]map[string][]types.Observation
	errs     map[string]error
}

// Prefetch groups the requests by source and fetches every BatchSource once,
// over the union of its variables' ranges. A failed batch fails each of its
// variables when they are fetched from the result.
func (r *Registry) Prefetch(ctx context.Context, reqs []Request) *Prefetched {
	p := &Prefetched{
		registry: r,
		obs:      make(map[string]map[string][]types.Observation),
		errs:     make(map[string]error),
	}

	type batch struct {
		fields   []string
		seen     map[string]bool
		from, to time.Time
	}
	batches := make(map[string]*batch)
	var order []string
	for _, req := range reqs {
		s, ok := r.sources[req.Variable.Source]
		if !ok {
			continue
		}
		if _, ok := s.(BatchSource); !ok {
			continue
		}
		b, ok := batches[req.Variable.Source]
		if !ok {
			b = &batch{seen: make(map[string]bool), from: req.From, to: req.To}
			batches[req.Variable.Source] = b
			order = append(order, req.Variable.Source)
		}
		if req.From.Before(b.from) {
			b.from = req.From
		}
		if req.To.After(b.to) {
			b.to = req.To
		}
		if f := fieldOf(req.Variable); !b.seen[f] {
			b.seen[f] = true
			b.fields = append(b.fields, f)
		}
	}

	for _, name := range order {
		b := batches[name]
		res, err := r.sources[name].(BatchSource).FetchBatch(ctx, b.fields, b.from, b.to)
		if err != nil {
			p.errs[name] = err
			continue
		}
		p.obs[name] = res
	}
	return p
}

// Fetch implements Source
func (p *Prefetched) Fetch(ctx context.Context, v types.Variable, from, to time.Time) ([]types.Observation, error) {
	if err, ok := p.errs[v.Source]; ok {
		return nil, &types.AcquisitionError{Variable: v.Name, Err: err}
	}
	res, ok := p.obs[v.Source]
	if !ok {
		return p.registry.Fetch(ctx, v, from, to)
	}
	return Between(res[fieldOf(v)], from, to), nil
}

func fieldOf(v types.Variable) string {
	if v.Field != "" {
		return v.Field
	}
	return v.Name
}
