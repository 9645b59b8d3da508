// Package policy maps simulator observations to exposure actions.
//
// The variant set is closed: BuyHold, Flat, AvoidEarnings and Learned (a
// handle to an externally trained model). Every variant is driven through the
// same Decide call, so the simulator loop never branches on policy names.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/earningsedge/internal/env"
)

// Action indices into env.ExposureLevels
const (
	ActionFlat    = 0 // 0%
	ActionQuarter = 1 // 25%
	ActionHalf    = 2 // 50%
	ActionFull    = 3 // 100%
)

// Policy decides an action from an observation
type Policy interface {
	Name() string
	Decide(obs env.Observation) int
}

// BuyHold is always fully invested
type BuyHold struct{}

func (BuyHold) Name() string               { return "buy_hold" }
func (BuyHold) Decide(env.Observation) int { return ActionFull }

// Flat never holds the asset
type Flat struct{}

func (Flat) Name() string               { return "flat" }
func (Flat) Decide(env.Observation) int { return ActionFlat }

// AvoidEarnings is flat inside an earnings window and fully invested otherwise
type AvoidEarnings struct{}

func (AvoidEarnings) Name() string { return "avoid_earnings" }

func (AvoidEarnings) Decide(obs env.Observation) int {
	if obs.InEarningsWindow() {
		return ActionFlat
	}
	return ActionFull
}

// Model is an externally trained action scorer
type Model interface {
	Predict(obs env.Observation) int
}

// Learned wraps a trained model
type Learned struct {
	name  string
	model Model
}

// NewLearned names a trained model as a policy
func NewLearned(name string, model Model) *Learned {
	return &Learned{name: name, model: model}
}

func (l *Learned) Name() string { return l.name }

func (l *Learned) Decide(obs env.Observation) int {
	return l.model.Predict(obs)
}

// Baselines returns the heuristic policies in evaluation order
func Baselines() []Policy {
	return []Policy{BuyHold{}, Flat{}, AvoidEarnings{}}
}

// LearnedName is the conventional name of the trained policy
const LearnedName = "ppo"

// Registry resolves CLI/API policy names to variants
type Registry struct {
	policies map[string]Policy
}

// NewRegistry registers the baselines plus any extra policies
func NewRegistry(extra ...Policy) *Registry {
	r := &Registry{policies: make(map[string]Policy)}
	for _, p := range Baselines() {
		r.Register(p)
	}
	for _, p := range extra {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a policy under its name
func (r *Registry) Register(p Policy) {
	r.policies[p.Name()] = p
}

// Get returns the named policy
func (r *Registry) Get(name string) (Policy, error) {
	p, ok := r.policies[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("unknown policy %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Resolve returns the policies for names, in order
func (r *Registry) Resolve(names []string) ([]Policy, error) {
	out := make([]Policy, 0, len(names))
	for _, name := range names {
		p, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Names lists registered policy names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
