// Package flow declares the conversation flows as static state tables.
//
// Each flow is a linear sequence of states; a state either collects one field,
// presents collected data for review, runs the backend call, or terminates the
// flow. The conversation manager performs no flow-specific branching: adding a
// flow means declaring a new table here.
package flow

import (
	"fmt"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// StateSpec describes a single state in a flow table.
type StateSpec struct {
	// Next is the state entered after this one completes.
	Next models.StateType
	// Field is the datum collected in this state; empty for review,
	// generating, and terminal states.
	Field models.Field
	// Optional states may be skipped without input.
	Optional bool
	// Editable states may be revisited from the flow's review state.
	Editable bool
	// Confirmation states require an explicit confirm before advancing.
	Confirmation bool
	// Generating states run the backend call; they are never advanced by
	// user input.
	Generating bool
	// Terminal states end the flow.
	Terminal bool
	// Prompt is the message shown when the state is entered.
	Prompt string
}

// Definition is a complete flow table.
type Definition struct {
	Kind    models.FlowKind
	Initial models.StateType
	// Order lists every state in flow order; States maps each to its spec.
	Order  []models.StateType
	States map[models.StateType]StateSpec
}

// Spec returns the spec for a state, reporting whether the state belongs to
// the flow.
func (d *Definition) Spec(state models.StateType) (StateSpec, bool) {
	s, ok := d.States[state]
	return s, ok
}

// Next returns the successor of the given state, or an error if the state is
// terminal or unknown.
func (d *Definition) Next(state models.StateType) (models.StateType, error) {
	s, ok := d.States[state]
	if !ok {
		return "", fmt.Errorf("flow %s: unknown state %s", d.Kind, state)
	}
	if s.Terminal {
		return "", fmt.Errorf("flow %s: state %s is terminal", d.Kind, state)
	}
	return s.Next, nil
}

// StateFor returns the state that collects the given field.
func (d *Definition) StateFor(f models.Field) (models.StateType, bool) {
	for _, st := range d.Order {
		if d.States[st].Field == f {
			return st, true
		}
	}
	return "", false
}

// ReviewState returns the flow's review state (editable + confirmation).
func (d *Definition) ReviewState() models.StateType {
	for _, st := range d.Order {
		s := d.States[st]
		if s.Confirmation && !s.Generating {
			return st
		}
	}
	return ""
}

// TerminalState returns the flow's single terminal state.
func (d *Definition) TerminalState() models.StateType {
	for _, st := range d.Order {
		if d.States[st].Terminal {
			return st
		}
	}
	return ""
}

// GeneratingState returns the state that runs the backend call.
func (d *Definition) GeneratingState() models.StateType {
	for _, st := range d.Order {
		if d.States[st].Generating {
			return st
		}
	}
	return ""
}

// Required returns the fields of all non-optional collecting states, in flow
// order.
func (d *Definition) Required() []models.Field {
	var fields []models.Field
	for _, st := range d.Order {
		s := d.States[st]
		if s.Field != "" && !s.Optional {
			fields = append(fields, s.Field)
		}
	}
	return fields
}

// Fields returns every collected field in flow order, optional ones included.
func (d *Definition) Fields() []models.Field {
	var fields []models.Field
	for _, st := range d.Order {
		if s := d.States[st]; s.Field != "" {
			fields = append(fields, s.Field)
		}
	}
	return fields
}

// Verify checks the structural invariants of the table: every listed state has
// a spec, every Next points inside the table, exactly one terminal state
// exists and it is reachable from the initial state, and no field is collected
// twice.
func (d *Definition) Verify() error {
	if len(d.Order) != len(d.States) {
		return fmt.Errorf("flow %s: order lists %d states, table has %d", d.Kind, len(d.Order), len(d.States))
	}
	if _, ok := d.States[d.Initial]; !ok {
		return fmt.Errorf("flow %s: initial state %s not in table", d.Kind, d.Initial)
	}

	terminals := 0
	seenFields := make(map[models.Field]bool)
	for _, st := range d.Order {
		s, ok := d.States[st]
		if !ok {
			return fmt.Errorf("flow %s: state %s listed but not defined", d.Kind, st)
		}
		if s.Terminal {
			terminals++
			if s.Next != "" {
				return fmt.Errorf("flow %s: terminal state %s has a successor", d.Kind, st)
			}
			continue
		}
		if _, ok := d.States[s.Next]; !ok {
			return fmt.Errorf("flow %s: state %s transitions to undefined state %s", d.Kind, st, s.Next)
		}
		if s.Field != "" {
			if seenFields[s.Field] {
				return fmt.Errorf("flow %s: field %s collected twice", d.Kind, s.Field)
			}
			seenFields[s.Field] = true
		}
	}
	if terminals != 1 {
		return fmt.Errorf("flow %s: expected exactly one terminal state, found %d", d.Kind, terminals)
	}

	// The terminal state must be reachable by walking Next from the start.
	visited := make(map[models.StateType]bool)
	cur := d.Initial
	for {
		if visited[cur] {
			return fmt.Errorf("flow %s: transition cycle at state %s", d.Kind, cur)
		}
		visited[cur] = true
		s := d.States[cur]
		if s.Terminal {
			break
		}
		cur = s.Next
	}
	if len(visited) != len(d.Order) {
		return fmt.Errorf("flow %s: %d of %d states unreachable from initial", d.Kind, len(d.Order)-len(visited), len(d.Order))
	}
	return nil
}

// ForKind returns the flow definition for the given kind.
func ForKind(k models.FlowKind) (*Definition, error) {
	switch k {
	case models.FlowNewPatient:
		return NewPatient, nil
	case models.FlowControl:
		return Control, nil
	case models.FlowReplacement:
		return Replacement, nil
	default:
		return nil, fmt.Errorf("unknown flow kind: %s", k)
	}
}
