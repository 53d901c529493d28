// Package plan computes and renders the restore plan. Build performs no I/O.
package plan

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tis24dev/stackrestore/internal/config"
	"github.com/tis24dev/stackrestore/internal/selector"
)

// ErrConsumed is returned when a plan is executed a second time.
var ErrConsumed = errors.New("restore plan already executed")

// ActionKind names one stage of the pipeline.
type ActionKind string

const (
	ActionDownload ActionKind = "download"
	ActionValidate ActionKind = "validate"
	ActionSnapshot ActionKind = "snapshot"
	ActionStop     ActionKind = "stop"
	ActionExtract  ActionKind = "extract"
	ActionStart    ActionKind = "start"
	ActionHealth   ActionKind = "health check"
)

// Action is one planned step, in execution order.
type Action struct {
	Kind        ActionKind `json:"kind" yaml:"kind"`
	Target      string     `json:"target" yaml:"target"`
	Description string     `json:"description" yaml:"description"`
	// Conditional actions are skipped at run time when their target is
	// absent.
	Conditional bool `json:"conditional,omitempty" yaml:"conditional,omitempty"`
}

// Plan is the ordered description of a restore run.
type Plan struct {
	Descriptor  selector.Descriptor
	Items       []string
	Actions     []Action
	RestoreRoot string
	SafetyDir   string

	consumed atomic.Bool
}

// Build derives the plan from cfg and the chosen descriptor.
func Build(cfg *config.Config, d selector.Descriptor) *Plan {
	p := &Plan{
		Descriptor:  d,
		Items:       cfg.Items(),
		RestoreRoot: cfg.RestoreRoot,
		SafetyDir:   cfg.SafetyDir,
	}

	add := func(kind ActionKind, target, desc string, conditional bool) {
		p.Actions = append(p.Actions, Action{Kind: kind, Target: target, Description: desc, Conditional: conditional})
	}

	add(ActionDownload, d.RemotePath, fmt.Sprintf("download %s to %s", d.RemotePath, d.LocalPath), false)
	add(ActionValidate, d.LocalPath, "list every archive entry without extracting", false)
	add(ActionSnapshot, cfg.SafetyDir, fmt.Sprintf("archive existing restore items into %s", cfg.SafetyDir), true)

	type svc struct {
		target string
		desc   string
	}
	aux := svc{cfg.AuxService, "auxiliary service " + cfg.AuxService}
	stack := svc{cfg.ComposeFile, "compose stack " + cfg.ComposeFile}
	edge := svc{cfg.EdgeService, "edge service " + cfg.EdgeService}

	for _, s := range []svc{aux, stack, edge} {
		if s.target != "" {
			add(ActionStop, s.target, "stop "+s.desc, true)
		}
	}
	add(ActionExtract, cfg.RestoreRoot, fmt.Sprintf("extract %s over %s with overwrite", d.Name, cfg.RestoreRoot), false)
	for _, s := range []svc{edge, stack, aux} {
		if s.target != "" {
			add(ActionStart, s.target, "start "+s.desc, true)
		}
	}
	add(ActionHealth, "", "probe every started service", false)
	return p
}

// Consume marks the plan as executed. Only the first call succeeds.
func (p *Plan) Consume() error {
	if !p.consumed.CompareAndSwap(false, true) {
		return ErrConsumed
	}
	return nil
}

