package services

import (
	"context"
	"fmt"

	"github.com/tis24dev/stackrestore/internal/logging"
)

var (
	stopOrder  = []Role{RoleAux, RoleCompose, RoleEdge}
	startOrder = []Role{RoleEdge, RoleCompose, RoleAux}
)

// Targets names what the controller manages. Empty fields are not managed.
type Targets struct {
	Aux         string
	Edge        string
	ComposeFile string
}

// Member is one managed service as detected at run start.
type Member struct {
	Role    Role
	Unit    string
	Kind    Kind
	Present bool
}

// Set holds the detected members.
type Set []Member

// Ordered returns the members in the given role order.
func (s Set) Ordered(roles []Role) []Member {
	out := make([]Member, 0, len(s))
	for _, role := range roles {
		for _, m := range s {
			if m.Role == role {
				out = append(out, m)
			}
		}
	}
	return out
}

// StopOrder is aux, compose stack, edge.
func (s Set) StopOrder() []Member { return s.Ordered(stopOrder) }

// StartOrder is edge, compose stack, aux.
func (s Set) StartOrder() []Member { return s.Ordered(startOrder) }

// Present returns the members that will be acted on.
func (s Set) Present() []Member {
	var out []Member
	for _, m := range s {
		if m.Present {
			out = append(out, m)
		}
	}
	return out
}

// Recorder runs a best-effort action and records its outcome. Failures
// are never propagated to the caller's control flow.
type Recorder interface {
	BestEffort(name string, fn func() error) error
}

// Health is the post-start probe result of one member.
type Health struct {
	Member Member
	Active bool
	Err    error
}

// Controller sequences stop and start across providers.
type Controller struct {
	units   Provider
	compose Provider
	logger  *logging.Logger
}

// NewController wires the unit and compose providers.
func NewController(units, compose Provider, logger *logging.Logger) *Controller {
	return &Controller{units: units, compose: compose, logger: logger}
}

func (c *Controller) provider(m Member) Provider {
	if m.Kind == KindCompose {
		return c.compose
	}
	return c.units
}

// Detect evaluates presence of every target. Nothing is cached between
// calls.
func (c *Controller) Detect(ctx context.Context, t Targets) Set {
	candidates := []Member{
		{Role: RoleAux, Unit: t.Aux, Kind: KindUnit},
		{Role: RoleCompose, Unit: t.ComposeFile, Kind: KindCompose},
		{Role: RoleEdge, Unit: t.Edge, Kind: KindUnit},
	}
	var set Set
	for _, m := range candidates {
		if m.Unit == "" {
			continue
		}
		p := c.provider(m)
		if p == nil {
			set = append(set, m)
			continue
		}
		present, err := p.Present(ctx, m.Unit)
		if err != nil {
			// Unknown presence: attempt the action and let it fail softly.
			c.logger.Warning("Cannot determine presence of %s: %v", m.Unit, err)
			present = true
		}
		m.Present = present
		set = append(set, m)
	}
	return set
}

// Stop stops every present member in stop order.
func (c *Controller) Stop(ctx context.Context, set Set, rec Recorder) {
	c.each(ctx, set.StopOrder(), "stop", rec, func(p Provider, name string) error {
		return p.Stop(ctx, name)
	})
}

// Start starts every present member in start order.
func (c *Controller) Start(ctx context.Context, set Set, rec Recorder) {
	c.each(ctx, set.StartOrder(), "start", rec, func(p Provider, name string) error {
		return p.Start(ctx, name)
	})
}

func (c *Controller) each(ctx context.Context, members []Member, op string, rec Recorder, fn func(Provider, string) error) {
	if rec == nil {
		rec = logRecorder{c.logger}
	}
	for _, m := range members {
		if !m.Present {
			c.logger.Skip("%s %s: not present", op, describe(m))
			continue
		}
		p := c.provider(m)
		if p == nil {
			c.logger.Skip("%s %s: no provider", op, describe(m))
			continue
		}
		c.logger.Step("%s %s", op, describe(m))
		member := m
		_ = rec.BestEffort(fmt.Sprintf("%s %s", op, describe(member)), func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(p, member.Unit)
		})
	}
}

// Health probes every present member in start order.
func (c *Controller) Health(ctx context.Context, set Set) []Health {
	var out []Health
	for _, m := range set.StartOrder() {
		if !m.Present {
			continue
		}
		h := Health{Member: m}
		if p := c.provider(m); p != nil {
			h.Active, h.Err = p.IsActive(ctx, m.Unit)
		} else {
			h.Err = ErrNotPresent
		}
		out = append(out, h)
	}
	return out
}

func describe(m Member) string {
	if m.Kind == KindCompose {
		return "compose stack " + m.Unit
	}
	return string(m.Role) + " service " + m.Unit
}

type logRecorder struct{ logger *logging.Logger }

func (r logRecorder) BestEffort(name string, fn func() error) error {
	err := fn()
	if err != nil {
		r.logger.Warning("%s failed (continuing): %v", name, err)
	}
	return err
}
