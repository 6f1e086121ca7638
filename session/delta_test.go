package session

import "testing"

func TestApplyAtomicityReadonlySibling(t *testing.T) {
	s := New("/tmp")
	s.Variables["LOCKED"] = Variable{Kind: Scalar, Str: "orig", ReadOnly: true}

	d := NewDelta()
	d.VarUpdates = map[string]Variable{
		"LOCKED": {Kind: Scalar, Str: "new"},
		"FREE":   {Kind: Scalar, Str: "ok"},
	}
	if err := s.Apply(d); err == nil {
		t.Fatal("expected readonly violation error")
	}

	if v, _ := s.GetVar("LOCKED"); v.Str != "orig" {
		t.Errorf("readonly variable should be untouched, got %q", v.Str)
	}
	if v, _ := s.GetVar("FREE"); v.Str != "ok" {
		t.Errorf("sibling update should still apply despite the readonly error, got %q", v.Str)
	}
}

func TestNamerefResolution(t *testing.T) {
	s := New("/tmp")
	s.Variables["target"] = Variable{Kind: Scalar, Str: "hello"}
	s.Variables["ref"] = Variable{Kind: Nameref, Str: "target"}

	v, ok := s.GetVar("ref")
	if !ok || v.Str != "hello" {
		t.Fatalf("expected ref to resolve to target's value, got %+v, ok=%v", v, ok)
	}

	if err := s.SetVar("ref", Variable{Kind: Scalar, Str: "world"}); err != nil {
		t.Fatalf("SetVar through nameref: %v", err)
	}
	if s.Variables["target"].Str != "world" {
		t.Errorf("write through nameref should land on target, got %q", s.Variables["target"].Str)
	}
}

func TestNamerefCycleTreatedAsUnset(t *testing.T) {
	s := New("/tmp")
	s.Variables["a"] = Variable{Kind: Nameref, Str: "b"}
	s.Variables["b"] = Variable{Kind: Nameref, Str: "a"}

	_, ok := s.GetVar("a")
	if ok {
		t.Error("a cyclic nameref chain should resolve as unset")
	}
}

func TestUnsetNamerefRemovesReferenceNotTarget(t *testing.T) {
	s := New("/tmp")
	s.Variables["target"] = Variable{Kind: Scalar, Str: "hello"}
	s.Variables["ref"] = Variable{Kind: Nameref, Str: "target"}

	d := NewDelta()
	d.NamerefUnset = []string{"ref"}
	if err := s.Apply(d); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok := s.Variables["ref"]; ok {
		t.Error("ref should be gone")
	}
	if v, ok := s.Variables["target"]; !ok || v.Str != "hello" {
		t.Error("target should survive `unset -n ref`")
	}
}
