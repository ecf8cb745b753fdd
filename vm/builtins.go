package vm

import (
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Builtin globals
// ---------------------------------------------------------------------------

// BuiltinNames lists the globals every engine starts with.
var BuiltinNames = []string{
	"print", "String", "Number", "Boolean", "isNaN",
	"Error", "TypeError", "RangeError", "ReferenceError",
	"Object", "Math",
}

func (e *Engine) installBuiltins() {
	e.Globals["print"] = NewNative("print", builtinPrint)
	e.Globals["String"] = NewNative("String", func(e *Engine, this Value, args []Value) Value {
		if len(args) == 0 {
			return String("")
		}
		return String(args[0].ToString())
	})
	e.Globals["Number"] = NewNative("Number", func(e *Engine, this Value, args []Value) Value {
		if len(args) == 0 {
			return Number(0)
		}
		return Number(args[0].ToNumber())
	})
	e.Globals["Boolean"] = NewNative("Boolean", func(e *Engine, this Value, args []Value) Value {
		return Bool(Arg(args, 0).Truthy())
	})
	e.Globals["isNaN"] = NewNative("isNaN", func(e *Engine, this Value, args []Value) Value {
		return Bool(math.IsNaN(Arg(args, 0).ToNumber()))
	})
	for _, name := range []string{"Error", "TypeError", "RangeError", "ReferenceError"} {
		e.Globals[name] = errorConstructor(name)
	}

	object := NewObject()
	object.Set("keys", NewNative("keys", func(e *Engine, this Value, args []Value) Value {
		o := Arg(args, 0).AsObject()
		if o == nil {
			return ArrayValue(NewArray())
		}
		keys := make([]Value, 0, o.Len())
		for _, k := range o.Keys() {
			keys = append(keys, String(k))
		}
		return ArrayValue(NewArray(keys...))
	}))
	e.Globals["Object"] = ObjectValue(object)

	m := NewObject()
	unary := func(name string, fn func(float64) float64) {
		m.Set(name, NewNative(name, func(e *Engine, this Value, args []Value) Value {
			return Number(fn(Arg(args, 0).ToNumber()))
		}))
	}
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("abs", math.Abs)
	unary("sqrt", math.Sqrt)
	m.Set("max", NewNative("max", func(e *Engine, this Value, args []Value) Value {
		r := math.Inf(-1)
		for _, a := range args {
			r = math.Max(r, a.ToNumber())
		}
		return Number(r)
	}))
	m.Set("min", NewNative("min", func(e *Engine, this Value, args []Value) Value {
		r := math.Inf(1)
		for _, a := range args {
			r = math.Min(r, a.ToNumber())
		}
		return Number(r)
	}))
	m.Set("PI", Number(math.Pi))
	e.Globals["Math"] = ObjectValue(m)
}

func builtinPrint(e *Engine, this Value, args []Value) Value {
	parts := make([]string, len(args))
	for i, a := range args {
		if a.kind == KindString {
			parts[i] = a.str
		} else {
			parts[i] = a.Inspect()
		}
	}
	fmt.Fprintln(e.out, strings.Join(parts, " "))
	return Undefined
}

func errorConstructor(name string) Value {
	return NewNative(name, func(e *Engine, this Value, args []Value) Value {
		msg := ""
		if a := Arg(args, 0); !a.IsUndefined() {
			msg = a.ToString()
		}
		return ObjectValue(NewErrorObject(name, msg))
	})
}

// ---------------------------------------------------------------------------
// Array methods
// ---------------------------------------------------------------------------

var arrayMethods map[string]*Native

func init() {
	withArray := func(name string, fn func(e *Engine, a *Array, args []Value) Value) *Native {
		return &Native{Name: name, Fn: func(e *Engine, this Value, args []Value) Value {
			a := this.AsArray()
			if a == nil {
				e.ThrowTypeError("Array.prototype.%s called on %s", name, describe(this))
				return Undefined
			}
			return fn(e, a, args)
		}}
	}
	arrayMethods = map[string]*Native{
		"push": withArray("push", func(e *Engine, a *Array, args []Value) Value {
			a.Elems = append(a.Elems, args...)
			return Number(float64(len(a.Elems)))
		}),
		"pop": withArray("pop", func(e *Engine, a *Array, args []Value) Value {
			if len(a.Elems) == 0 {
				return Undefined
			}
			v := a.Elems[len(a.Elems)-1]
			a.Elems = a.Elems[:len(a.Elems)-1]
			return v
		}),
		"join": withArray("join", func(e *Engine, a *Array, args []Value) Value {
			sep := ","
			if s := Arg(args, 0); !s.IsUndefined() {
				sep = s.ToString()
			}
			parts := make([]string, len(a.Elems))
			for i, v := range a.Elems {
				if !v.IsNullish() {
					parts[i] = v.ToString()
				}
			}
			return String(strings.Join(parts, sep))
		}),
		"indexOf": withArray("indexOf", func(e *Engine, a *Array, args []Value) Value {
			needle := Arg(args, 0)
			for i, v := range a.Elems {
				if StrictEquals(v, needle) {
					return Number(float64(i))
				}
			}
			return Number(-1)
		}),
	}
}

// LookupBuiltin resolves a native by its qualified name, such as "print",
// "Math.floor" or "generator.next". Snapshots use it to reattach natives.
func (e *Engine) LookupBuiltin(name string) (Value, bool) {
	if recv, method, ok := strings.Cut(name, "."); ok {
		switch recv {
		case "generator":
			if m, ok := generatorMethods[method]; ok {
				return NativeValue(m), true
			}
			return Undefined, false
		case "array":
			if m, ok := arrayMethods[method]; ok {
				return NativeValue(m), true
			}
			return Undefined, false
		case "arrayIterator":
			if m, ok := arrayIteratorMethods[method]; ok {
				return NativeValue(m), true
			}
			return Undefined, false
		}
		holder, ok := e.Globals[recv]
		if !ok || holder.AsObject() == nil {
			return Undefined, false
		}
		v, ok := holder.AsObject().Lookup(method)
		return v, ok && v.kind == KindNative
	}
	v, ok := e.Globals[name]
	return v, ok && v.kind == KindNative
}

// BuiltinName returns the qualified name under which LookupBuiltin finds n.
func (e *Engine) BuiltinName(n *Native) (string, bool) {
	for name, m := range generatorMethods {
		if m == n {
			return "generator." + name, true
		}
	}
	for name, m := range arrayMethods {
		if m == n {
			return "array." + name, true
		}
	}
	for name, m := range arrayIteratorMethods {
		if m == n {
			return "arrayIterator." + name, true
		}
	}
	for _, g := range BuiltinNames {
		v := e.Globals[g]
		if v.AsNative() == n {
			return g, true
		}
		if o := v.AsObject(); o != nil {
			for _, k := range o.Keys() {
				if o.Get(k).AsNative() == n {
					return g + "." + k, true
				}
			}
		}
	}
	return "", false
}
