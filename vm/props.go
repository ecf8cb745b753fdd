package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Property access
// ---------------------------------------------------------------------------

func (e *Engine) getProp(obj Value, name string) Value {
	switch obj.kind {
	case KindUndefined, KindNull:
		e.ThrowTypeError("Cannot read properties of %s (reading '%s')", obj.ToString(), name)
		return Undefined
	case KindObject:
		o := obj.ref.(*Object)
		if v, ok := o.Lookup(name); ok {
			return v
		}
		if o.Class == ClassArrayIterator {
			if m, ok := arrayIteratorMethods[name]; ok {
				return NativeValue(m)
			}
		}
	case KindArray:
		a := obj.ref.(*Array)
		if name == "length" {
			return Number(float64(len(a.Elems)))
		}
		if i, ok := arrayIndex(name); ok {
			return a.Get(i)
		}
		if m, ok := arrayMethods[name]; ok {
			return NativeValue(m)
		}
	case KindString:
		if name == "length" {
			return Number(float64(len(obj.str)))
		}
	case KindGenerator:
		if m, ok := generatorMethods[name]; ok {
			return NativeValue(m)
		}
	case KindFunction:
		if name == "name" {
			return String(obj.ref.(*Function).Name)
		}
	case KindNative:
		if name == "name" {
			return String(obj.ref.(*Native).Name)
		}
	}
	return Undefined
}

func (e *Engine) setProp(obj Value, name string, v Value) {
	switch obj.kind {
	case KindObject:
		obj.ref.(*Object).Set(name, v)
	case KindArray:
		a := obj.ref.(*Array)
		if name == "length" {
			n := v.ToNumber()
			if n < 0 || n != math.Trunc(n) {
				e.ThrowRangeError("Invalid array length")
				return
			}
			if int(n) < len(a.Elems) {
				a.Elems = a.Elems[:int(n)]
			} else if int(n) > len(a.Elems) {
				a.Set(int(n)-1, Undefined)
			}
			return
		}
		if i, ok := arrayIndex(name); ok {
			a.Set(i, v)
			return
		}
		e.ThrowTypeError("Cannot set property '%s' of array", name)
	default:
		e.ThrowTypeError("Cannot set properties of %s (setting '%s')", describe(obj), name)
	}
}

func (e *Engine) getElem(obj, key Value) Value {
	if a := obj.AsArray(); a != nil && key.kind == KindNumber {
		if i, ok := numberIndex(key.num); ok {
			return a.Get(i)
		}
		return Undefined
	}
	return e.getProp(obj, key.ToString())
}

func (e *Engine) setElem(obj, key, v Value) {
	if a := obj.AsArray(); a != nil && key.kind == KindNumber {
		i, ok := numberIndex(key.num)
		if !ok {
			e.ThrowRangeError("Invalid array index %s", key.ToString())
			return
		}
		a.Set(i, v)
		return
	}
	e.setProp(obj, key.ToString(), v)
}

const maxArrayIndex = 1 << 24

func numberIndex(n float64) (int, bool) {
	if n < 0 || n != math.Trunc(n) || n >= maxArrayIndex {
		return 0, false
	}
	return int(n), true
}

func arrayIndex(name string) (int, bool) {
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || n >= maxArrayIndex || strconv.Itoa(n) != name {
		return 0, false
	}
	return n, true
}

// ---------------------------------------------------------------------------
// Iterator protocol
// ---------------------------------------------------------------------------

// getIterator returns the iterator for v: generators iterate themselves,
// arrays get a fresh index iterator, and any object with a callable next
// is treated as an iterator already.
func (e *Engine) getIterator(v Value) Value {
	switch v.kind {
	case KindGenerator:
		return v
	case KindArray:
		return newArrayIterator(v.ref.(*Array))
	case KindObject:
		if e.getProp(v, "next").IsCallable() {
			return v
		}
	}
	e.ThrowTypeError("%s is not iterable", describe(v))
	return Undefined
}

// iterNext advances iter and returns its result object.
func (e *Engine) iterNext(iter, arg Value) Value {
	var r Value
	if g := iter.AsGenerator(); g != nil {
		r = g.resume(resumeNext, arg)
	} else {
		next := e.getProp(iter, "next")
		if e.hasException {
			return Undefined
		}
		r = e.call(next, iter, []Value{arg})
	}
	if e.hasException {
		return Undefined
	}
	if r.kind != KindObject {
		e.ThrowTypeError("Iterator result %s is not an object", r.Inspect())
		return Undefined
	}
	return r
}

// iterReturn asks iter to finish with v. ok is false when iter has no
// return method.
func (e *Engine) iterReturn(iter, v Value) (r Value, ok bool) {
	if g := iter.AsGenerator(); g != nil {
		r = g.resume(resumeReturn, v)
	} else {
		ret := e.getProp(iter, "return")
		if e.hasException || !ret.IsCallable() {
			return Undefined, false
		}
		r = e.call(ret, iter, []Value{v})
	}
	if e.hasException {
		return Undefined, true
	}
	if r.kind != KindObject {
		e.ThrowTypeError("Iterator result %s is not an object", r.Inspect())
		return Undefined, true
	}
	return r, true
}

// iterClose finishes iter early, as when a for...of loop is left by break.
func (e *Engine) iterClose(iter Value) {
	if g := iter.AsGenerator(); g != nil && g.State() == GeneratorCompleted {
		return
	}
	e.iterReturn(iter, Undefined)
}

func resultDone(r Value) bool {
	return r.AsObject().Get("done").Truthy()
}

func resultValue(r Value) Value {
	return r.AsObject().Get("value")
}

// newArrayIterator returns an iterator over a. Its position lives in the
// object's internal slots so that a parked for...of loop can be captured.
func newArrayIterator(a *Array) Value {
	it := NewObjectOfClass(ClassArrayIterator)
	it.Internal = []Value{ArrayValue(a), Number(0)}
	return ObjectValue(it)
}

var arrayIteratorMethods map[string]*Native

func init() {
	withIterator := func(name string, fn func(it *Object, a *Array, i int, args []Value) Value) *Native {
		return &Native{Name: name, Fn: func(e *Engine, this Value, args []Value) Value {
			it := this.AsObject()
			if it == nil || it.Class != ClassArrayIterator || len(it.Internal) != 2 {
				e.ThrowTypeError("ArrayIterator.%s called on %s", name, describe(this))
				return Undefined
			}
			return fn(it, it.Internal[0].AsArray(), int(it.Internal[1].num), args)
		}}
	}
	arrayIteratorMethods = map[string]*Native{
		"next": withIterator("next", func(it *Object, a *Array, i int, args []Value) Value {
			if i >= len(a.Elems) {
				return IterResult(Undefined, true)
			}
			it.Internal[1] = Number(float64(i + 1))
			return IterResult(a.Elems[i], false)
		}),
		"return": withIterator("return", func(it *Object, a *Array, i int, args []Value) Value {
			it.Internal[1] = Number(float64(len(a.Elems)))
			return IterResult(Arg(args, 0), true)
		}),
	}
}
