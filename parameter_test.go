package param

import (
	"errors"
	"testing"
)

func TestKindRegistryComplete(t *testing.T) {
	kinds := []Kind{
		KindParameter, KindNumber, KindInteger, KindString, KindBoolean,
		KindList, KindDict, KindSelector, KindTrigger,
	}
	for _, k := range kinds {
		info, ok := kindRegistry[k]
		if !ok {
			t.Fatalf("kind %s is not registered", k)
		}
		if info.validate == nil {
			t.Errorf("kind %s has no validator", k)
		}
		if info.slotDefaults == nil {
			t.Errorf("kind %s has no slot defaults", k)
		}
		if info.parent != "" {
			if _, ok := kindRegistry[info.parent]; !ok {
				t.Errorf("kind %s names unregistered parent %s", k, info.parent)
			}
		}
	}
}

func TestNumberBounds(t *testing.T) {
	c := NewClass("Widget",
		Declare("rate", Number(Default(1.0), Bounds(F(0), F(10)))),
	)
	in, err := c.New(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := in.Set("rate", 10.0); err != nil {
		t.Errorf("inclusive upper bound rejected: %v", err)
	}
	if err := in.Set("rate", 10.5); err == nil {
		t.Error("expected out-of-bounds value to be rejected")
	}
	var verr *ValidationError
	if err := in.Set("rate", -1.0); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestExclusiveBounds(t *testing.T) {
	c := NewClass("Widget",
		Declare("rate", Number(Default(5.0), Bounds(F(0), F(10)), InclusiveBounds(false, true))),
	)
	in, err := c.New(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := in.Set("rate", 0.0); err == nil {
		t.Error("expected exclusive lower bound to reject 0")
	}
	if err := in.Set("rate", 10.0); err != nil {
		t.Errorf("inclusive upper bound rejected: %v", err)
	}
}

func TestIntegerRejectsFloat(t *testing.T) {
	c := NewClass("Widget", Declare("count", Integer(Default(0))))
	in, _ := c.New(nil)

	if err := in.Set("count", 3); err != nil {
		t.Errorf("expected int to be accepted, got %v", err)
	}
	if err := in.Set("count", 3.5); err == nil {
		t.Error("expected non-integral value to be rejected")
	}
}

func TestStringRegex(t *testing.T) {
	c := NewClass("Widget",
		Declare("code", String(Default("ab-1"), Regex(`^[a-z]+-\d+$`))),
	)
	in, _ := c.New(nil)

	if err := in.Set("code", "xyz-42"); err != nil {
		t.Errorf("matching value rejected: %v", err)
	}
	if err := in.Set("code", "XYZ"); err == nil {
		t.Error("expected non-matching value to be rejected")
	}
}

func TestAllowNone(t *testing.T) {
	c := NewClass("Widget",
		Declare("strict", String(Default("x"))),
		Declare("relaxed", String(Default("x"), AllowNone())),
		Declare("implied", String(Default(nil))),
	)
	in, _ := c.New(nil)

	if err := in.Set("strict", nil); err == nil {
		t.Error("expected nil to be rejected without AllowNone")
	}
	if err := in.Set("relaxed", nil); err != nil {
		t.Errorf("expected nil to be accepted with AllowNone: %v", err)
	}
	// A nil default implies nullability.
	if err := in.Set("implied", nil); err != nil {
		t.Errorf("expected nil default to imply AllowNone: %v", err)
	}
}

func TestSelectorMembership(t *testing.T) {
	c := NewClass("Widget",
		Declare("mode", Selector(Default("fast"), Objects("fast", "slow"))),
	)
	in, _ := c.New(nil)

	if err := in.Set("mode", "slow"); err != nil {
		t.Errorf("expected listed object to be accepted: %v", err)
	}
	if err := in.Set("mode", "medium"); err == nil {
		t.Error("expected unlisted object to be rejected")
	}
}

func TestListLengthBounds(t *testing.T) {
	c := NewClass("Widget",
		Declare("items", List(Default([]any{1}), Bounds(F(1), F(3)))),
	)
	in, _ := c.New(nil)

	if err := in.Set("items", []any{1, 2, 3}); err != nil {
		t.Errorf("expected length-3 list to be accepted: %v", err)
	}
	if err := in.Set("items", []any{}); err == nil {
		t.Error("expected empty list to violate the length bounds")
	}
}

func TestCheckFunc(t *testing.T) {
	c := NewClass("Widget",
		Declare("even", Integer(Default(0), Check(func(v any) error {
			if n, ok := v.(int); ok && n%2 != 0 {
				return errors.New("must be even")
			}
			return nil
		}))),
	)
	in, _ := c.New(nil)

	if err := in.Set("even", 4); err != nil {
		t.Errorf("expected even value to pass: %v", err)
	}
	if err := in.Set("even", 3); err == nil {
		t.Error("expected odd value to fail the check")
	}
}

func TestRuleValidation(t *testing.T) {
	c := NewClass("Widget",
		Declare("email", String(Default("a@b.co"), Rule("email"))),
	)
	in, _ := c.New(nil)

	if err := in.Set("email", "user@example.com"); err != nil {
		t.Errorf("expected valid email to pass: %v", err)
	}
	if err := in.Set("email", "not-an-email"); err == nil {
		t.Error("expected invalid email to fail the rule")
	}
}

func TestLabelFallsBackToName(t *testing.T) {
	c := NewClass("Widget",
		Declare("plain", String()),
		Declare("fancy", String(Label("The Fancy One"))),
	)
	p, _ := c.Parameter("plain")
	if p.Label() != "plain" {
		t.Errorf("expected name fallback, got %q", p.Label())
	}
	p, _ = c.Parameter("fancy")
	if p.Label() != "The Fancy One" {
		t.Errorf("expected declared label, got %q", p.Label())
	}
}

func TestSetSlotFiresMetadataWatchers(t *testing.T) {
	c := NewClass("Widget", Declare("rate", Number(Default(1.0))))
	p, _ := c.Parameter("rate")

	var got []Event
	_, err := c.Watch(func(events ...Event) error {
		got = append(got, events...)
		return nil
	}, []string{"rate"}, WithWhat(SlotDoc))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := p.SetSlot(SlotDoc, "the rate"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].What != SlotDoc || got[0].New != "the rate" {
		t.Errorf("unexpected event %+v", got[0])
	}

	if err := p.SetSlot("name", "nope"); err == nil {
		t.Error("expected renaming via SetSlot to be rejected")
	}
	if err := p.SetSlot(SlotDefault, 2.0); err == nil {
		t.Error("expected default writes via SetSlot to be rejected")
	}
}

func TestDeclaredDescriptorIsCopied(t *testing.T) {
	shared := Number(Default(1.0))
	a := NewClass("A", Declare("x", shared))
	b := NewClass("B", Declare("x", shared))

	pa, _ := a.Parameter("x")
	pb, _ := b.Parameter("x")
	if pa == pb {
		t.Fatal("expected each class to own an independent descriptor")
	}
	if err := pa.SetSlot(SlotDoc, "A's doc"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pb.Doc() == "A's doc" {
		t.Error("slot write on one class leaked into a sibling class")
	}
	if shared.Owner() != nil {
		t.Error("declaring must not bind the caller's descriptor")
	}
}
