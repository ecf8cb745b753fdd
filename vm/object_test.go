package vm

import (
	"strings"
	"testing"
)

func TestObjectInsertionOrder(t *testing.T) {
	o := NewObject()
	o.Set("b", Number(1))
	o.Set("a", Number(2))
	o.Set("c", Number(3))
	o.Set("a", Number(4)) // update keeps the original position

	if got := strings.Join(o.Keys(), ","); got != "b,a,c" {
		t.Errorf("Keys = %s, want b,a,c", got)
	}
	if o.Get("a").AsNumber() != 4 {
		t.Errorf("a = %v, want 4", o.Get("a"))
	}
	if o.Len() != 3 {
		t.Errorf("Len = %d, want 3", o.Len())
	}
}

func TestObjectLookupAndDelete(t *testing.T) {
	o := NewObject()
	o.Set("x", Undefined)

	if _, ok := o.Lookup("x"); !ok {
		t.Error("Lookup should find a property holding undefined")
	}
	if _, ok := o.Lookup("y"); ok {
		t.Error("Lookup found a missing property")
	}
	if !o.Get("y").IsUndefined() {
		t.Error("Get of a missing property should be undefined")
	}

	if !o.Delete("x") {
		t.Error("Delete(x) = false")
	}
	if o.Delete("x") {
		t.Error("second Delete(x) = true")
	}
	if o.Len() != 0 || len(o.Keys()) != 0 {
		t.Errorf("after delete: Len=%d Keys=%v", o.Len(), o.Keys())
	}
}

func TestErrorObject(t *testing.T) {
	o := NewErrorObject("TypeError", "nope")
	if o.Class != ClassError {
		t.Errorf("Class = %q, want %q", o.Class, ClassError)
	}
	if o.Get("name").AsString() != "TypeError" || o.Get("message").AsString() != "nope" {
		t.Errorf("error object = %s", ObjectValue(o).Inspect())
	}
}

func TestIterResult(t *testing.T) {
	r := IterResult(String("v"), true)
	o := r.AsObject()
	if o == nil {
		t.Fatal("IterResult is not an object")
	}
	if got := strings.Join(o.Keys(), ","); got != "value,done" {
		t.Errorf("keys = %s, want value,done", got)
	}
	if !resultDone(r) || resultValue(r).AsString() != "v" {
		t.Errorf("result = %s", r.Inspect())
	}
}

func TestArrayGetSet(t *testing.T) {
	a := NewArray(Number(1))
	if !a.Get(-1).IsUndefined() || !a.Get(1).IsUndefined() {
		t.Error("out of range Get should be undefined")
	}

	a.Set(3, String("x"))
	if len(a.Elems) != 4 {
		t.Fatalf("len = %d, want 4", len(a.Elems))
	}
	if !a.Elems[1].IsUndefined() || !a.Elems[2].IsUndefined() {
		t.Error("Set should pad with undefined")
	}
	if a.Get(3).AsString() != "x" {
		t.Errorf("a[3] = %s", a.Get(3))
	}
}

func TestArgHelper(t *testing.T) {
	args := []Value{Number(1)}
	if Arg(args, 0).AsNumber() != 1 {
		t.Error("Arg(0) mismatch")
	}
	if !Arg(args, 1).IsUndefined() {
		t.Error("Arg past the end should be undefined")
	}
}
