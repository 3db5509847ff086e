package flow

import (
	"testing"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

func TestAllDefinitionsVerify(t *testing.T) {
	for _, d := range []*Definition{NewPatient, Control, Replacement} {
		if err := d.Verify(); err != nil {
			t.Errorf("definition %s failed verification: %v", d.Kind, err)
		}
	}
}

func TestForKind(t *testing.T) {
	for _, k := range []models.FlowKind{models.FlowNewPatient, models.FlowControl, models.FlowReplacement} {
		d, err := ForKind(k)
		if err != nil {
			t.Fatalf("ForKind(%s) failed: %v", k, err)
		}
		if d.Kind != k {
			t.Errorf("expected kind %s, got %s", k, d.Kind)
		}
	}
	if _, err := ForKind("bogus"); err == nil {
		t.Error("expected error for unknown flow kind")
	}
}

func TestNewPatientShape(t *testing.T) {
	if NewPatient.Initial != models.StateAskingName {
		t.Errorf("expected intake to start at ASKING_NAME, got %s", NewPatient.Initial)
	}
	if NewPatient.ReviewState() != models.StateReviewingData {
		t.Errorf("unexpected review state %s", NewPatient.ReviewState())
	}
	if NewPatient.GeneratingState() != models.StateGeneratingPlan {
		t.Errorf("unexpected generating state %s", NewPatient.GeneratingState())
	}
	if NewPatient.TerminalState() != models.StatePlanReady {
		t.Errorf("unexpected terminal state %s", NewPatient.TerminalState())
	}

	// The optional intake questions must not appear in the required set.
	required := NewPatient.Required()
	for _, f := range required {
		switch f {
		case models.FieldSupplements, models.FieldPathologies, models.FieldRestrictions,
			models.FieldPreferences, models.FieldDislikes, models.FieldAllergies,
			models.FieldSchedule, models.FieldNotes:
			t.Errorf("optional field %s listed as required", f)
		}
	}
	if len(required) != 13 {
		t.Errorf("expected 13 required intake fields, got %d: %v", len(required), required)
	}
}

func TestNextWalksToTerminal(t *testing.T) {
	for _, d := range []*Definition{NewPatient, Control, Replacement} {
		cur := d.Initial
		steps := 0
		for {
			spec, ok := d.Spec(cur)
			if !ok {
				t.Fatalf("flow %s: walked into unknown state %s", d.Kind, cur)
			}
			if spec.Terminal {
				break
			}
			next, err := d.Next(cur)
			if err != nil {
				t.Fatalf("flow %s: Next(%s) failed: %v", d.Kind, cur, err)
			}
			cur = next
			steps++
			if steps > len(d.Order) {
				t.Fatalf("flow %s: walk exceeded table size", d.Kind)
			}
		}
		if cur != d.TerminalState() {
			t.Errorf("flow %s: walk ended at %s, not terminal %s", d.Kind, cur, d.TerminalState())
		}
	}
}

func TestNextRejectsTerminalAndUnknown(t *testing.T) {
	if _, err := NewPatient.Next(models.StatePlanReady); err == nil {
		t.Error("expected error advancing from terminal state")
	}
	if _, err := NewPatient.Next("NOT_A_STATE"); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestStateFor(t *testing.T) {
	st, ok := NewPatient.StateFor(models.FieldObjective)
	if !ok || st != models.StateAskingObjective {
		t.Errorf("expected ASKING_OBJECTIVE for objective field, got %s (ok=%v)", st, ok)
	}
	if _, ok := NewPatient.StateFor(models.FieldDay); ok {
		t.Error("expected day field to be absent from the intake flow")
	}
}

func TestEveryCollectingStateIsEditable(t *testing.T) {
	for _, d := range []*Definition{NewPatient, Control, Replacement} {
		for _, st := range d.Order {
			s := d.States[st]
			if s.Field != "" && !s.Editable {
				t.Errorf("flow %s: collecting state %s is not editable", d.Kind, st)
			}
		}
	}
}

func TestVerifyCatchesBrokenTables(t *testing.T) {
	broken := &Definition{
		Kind:    "broken",
		Initial: "A",
		Order:   []models.StateType{"A", "B"},
		States: map[models.StateType]StateSpec{
			"A": {Next: "MISSING"},
			"B": {Terminal: true},
		},
	}
	if err := broken.Verify(); err == nil {
		t.Error("expected verification failure for dangling transition")
	}

	twoTerminals := &Definition{
		Kind:    "broken",
		Initial: "A",
		Order:   []models.StateType{"A", "B", "C"},
		States: map[models.StateType]StateSpec{
			"A": {Next: "B"},
			"B": {Terminal: true},
			"C": {Terminal: true},
		},
	}
	if err := twoTerminals.Verify(); err == nil {
		t.Error("expected verification failure for two terminal states")
	}
}
