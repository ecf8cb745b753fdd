// Package snapshot converts parked generators to and from a CBOR wire
// format so they can be stored and resumed by another engine.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/genvm/vm"
)

// Version is the wire format version written by Marshal.
const Version = 1

var (
	// ErrVersion is returned for snapshots written by an incompatible format.
	ErrVersion = errors.New("snapshot: unsupported version")
	// ErrProgramMismatch is returned when a snapshot is restored against
	// bytecode other than the one it was taken from.
	ErrProgramMismatch = errors.New("snapshot: program hash mismatch")
	// ErrUnserializable is returned when a parked frame references a value
	// that has no wire form.
	ErrUnserializable = errors.New("snapshot: value cannot be serialised")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the wire form of a parked generator.
type Snapshot struct {
	Version     int       `cbor:"version"`
	ProgramHash string    `cbor:"program_hash"`
	ID          string    `cbor:"id"`
	Function    int       `cbor:"function"`
	State       uint8     `cbor:"state"`
	PC          int       `cbor:"pc"`
	Delegate    bool      `cbor:"delegate"`
	SP          int       `cbor:"sp"`
	Slots       []Value   `cbor:"slots"`
	Handlers    []Handler `cbor:"handlers"`
	This        Value     `cbor:"this"`
	Args        []Value   `cbor:"args"`
	Heap        []Entry   `cbor:"heap"`
}

// Handler is an active try region. Absent clauses are -1.
type Handler struct {
	Catch   int `cbor:"catch"`
	Finally int `cbor:"finally"`
	SP      int `cbor:"sp"`
}

// Value tags
const (
	TagUndefined uint8 = iota
	TagNull
	TagEmpty
	TagBool
	TagNumber
	TagString
	TagObject   // Ref indexes Heap
	TagArray    // Ref indexes Heap
	TagFunction // Ref indexes the program's functions
	TagNative   // Str names a builtin
)

// Value is one encoded script value. Objects and arrays are stored once in
// the heap table and referenced by index, so sharing and cycles survive.
type Value struct {
	Tag uint8   `cbor:"t"`
	Num float64 `cbor:"n"`
	Str string  `cbor:"s,omitempty"`
	Ref int     `cbor:"r,omitempty"`
}

// Entry is an object or array in the heap table. Object properties are
// kept in insertion order.
type Entry struct {
	Array    bool     `cbor:"array"`
	Class    string   `cbor:"class,omitempty"`
	Keys     []string `cbor:"keys,omitempty"`
	Values   []Value  `cbor:"values,omitempty"`
	Internal []Value  `cbor:"internal,omitempty"`
}

// Marshal serializes a Snapshot to canonical CBOR bytes.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("%w %d (want %d)", ErrVersion, s.Version, Version)
	}
	return &s, nil
}

// Take captures g and encodes it. Natives are named through e.
func Take(e *vm.Engine, g *vm.Generator) (*Snapshot, error) {
	pf, err := g.Capture()
	if err != nil {
		return nil, err
	}
	return Encode(e, g.Function().Program(), pf)
}

// Restore decodes s against prog and rebuilds the generator on e.
func Restore(e *vm.Engine, prog *vm.Program, s *Snapshot) (*vm.Generator, error) {
	pf, err := Decode(e, prog, s)
	if err != nil {
		return nil, err
	}
	return e.RestoreGenerator(prog, pf)
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type encoder struct {
	engine *vm.Engine
	prog   *vm.Program
	heap   []Entry
	seen   map[any]int
}

// Encode converts a parked frame taken from prog into its wire form.
func Encode(e *vm.Engine, prog *vm.Program, pf *vm.ParkedFrame) (*Snapshot, error) {
	enc := &encoder{engine: e, prog: prog, seen: make(map[any]int)}
	s := &Snapshot{
		Version:     Version,
		ProgramHash: prog.Hash(),
		ID:          pf.ID,
		Function:    pf.Function,
		State:       uint8(pf.State),
		PC:          pf.PC,
		Delegate:    pf.Delegate,
		SP:          pf.SP,
	}
	var err error
	if s.Slots, err = enc.values(pf.Slots); err != nil {
		return nil, fmt.Errorf("encode slots: %w", err)
	}
	if s.This, err = enc.value(pf.This); err != nil {
		return nil, fmt.Errorf("encode this: %w", err)
	}
	if s.Args, err = enc.values(pf.Args); err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	for _, h := range pf.Handlers {
		s.Handlers = append(s.Handlers, Handler{Catch: h.Catch, Finally: h.Finally, SP: h.SP})
	}
	s.Heap = enc.heap
	return s, nil
}

func (enc *encoder) values(vs []vm.Value) ([]Value, error) {
	out := make([]Value, len(vs))
	for i, v := range vs {
		w, err := enc.value(v)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func (enc *encoder) value(v vm.Value) (Value, error) {
	switch v.Kind() {
	case vm.KindUndefined:
		return Value{Tag: TagUndefined}, nil
	case vm.KindNull:
		return Value{Tag: TagNull}, nil
	case vm.KindEmpty:
		return Value{Tag: TagEmpty}, nil
	case vm.KindBool:
		if v.AsBool() {
			return Value{Tag: TagBool, Num: 1}, nil
		}
		return Value{Tag: TagBool}, nil
	case vm.KindNumber:
		return Value{Tag: TagNumber, Num: v.AsNumber()}, nil
	case vm.KindString:
		return Value{Tag: TagString, Str: v.AsString()}, nil
	case vm.KindObject:
		idx, err := enc.object(v.AsObject())
		return Value{Tag: TagObject, Ref: idx}, err
	case vm.KindArray:
		idx, err := enc.array(v.AsArray())
		return Value{Tag: TagArray, Ref: idx}, err
	case vm.KindFunction:
		fn := v.AsFunction()
		if fn.Program() != enc.prog {
			return Value{}, fmt.Errorf("%w: function %s belongs to another program", ErrUnserializable, fn.Name)
		}
		return Value{Tag: TagFunction, Ref: fn.Index}, nil
	case vm.KindNative:
		name, ok := enc.engine.BuiltinName(v.AsNative())
		if !ok {
			return Value{}, fmt.Errorf("%w: native %s is not a builtin", ErrUnserializable, v.AsNative().Name)
		}
		return Value{Tag: TagNative, Str: name}, nil
	case vm.KindGenerator:
		return Value{}, fmt.Errorf("%w: a parked frame cannot reference another generator", ErrUnserializable)
	}
	return Value{}, fmt.Errorf("%w: kind %s", ErrUnserializable, v.Kind())
}

// reserve allocates a heap slot for ref, or returns the existing one.
func (enc *encoder) reserve(ref any) (int, bool) {
	if idx, ok := enc.seen[ref]; ok {
		return idx, false
	}
	idx := len(enc.heap)
	enc.seen[ref] = idx
	enc.heap = append(enc.heap, Entry{})
	return idx, true
}

func (enc *encoder) object(o *vm.Object) (int, error) {
	idx, fresh := enc.reserve(o)
	if !fresh {
		return idx, nil
	}
	entry := Entry{Class: o.Class, Keys: append([]string(nil), o.Keys()...)}
	for _, k := range o.Keys() {
		w, err := enc.value(o.Get(k))
		if err != nil {
			return 0, fmt.Errorf("property %s: %w", k, err)
		}
		entry.Values = append(entry.Values, w)
	}
	internal, err := enc.values(o.Internal)
	if err != nil {
		return 0, err
	}
	if len(internal) > 0 {
		entry.Internal = internal
	}
	enc.heap[idx] = entry
	return idx, nil
}

func (enc *encoder) array(a *vm.Array) (int, error) {
	idx, fresh := enc.reserve(a)
	if !fresh {
		return idx, nil
	}
	elems, err := enc.values(a.Elems)
	if err != nil {
		return 0, err
	}
	enc.heap[idx] = Entry{Array: true, Values: elems}
	return idx, nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

type decoder struct {
	engine  *vm.Engine
	prog    *vm.Program
	heap    []Entry
	objects []vm.Value
}

// Decode rebuilds the parked frame held in s. The program must be the one
// the snapshot was taken from.
func Decode(e *vm.Engine, prog *vm.Program, s *Snapshot) (*vm.ParkedFrame, error) {
	if s.Version != Version {
		return nil, fmt.Errorf("%w %d (want %d)", ErrVersion, s.Version, Version)
	}
	if s.ProgramHash != prog.Hash() {
		return nil, fmt.Errorf("%w: snapshot %s, program %s", ErrProgramMismatch, short(s.ProgramHash), short(prog.Hash()))
	}

	dec := &decoder{engine: e, prog: prog, heap: s.Heap, objects: make([]vm.Value, len(s.Heap))}
	// Allocate every heap value first so references resolve in any order.
	for i, entry := range s.Heap {
		if entry.Array {
			dec.objects[i] = vm.ArrayValue(vm.NewArray())
		} else {
			dec.objects[i] = vm.ObjectValue(vm.NewObjectOfClass(entry.Class))
		}
	}
	for i, entry := range s.Heap {
		if err := dec.fill(dec.objects[i], entry); err != nil {
			return nil, fmt.Errorf("decode heap entry %d: %w", i, err)
		}
	}

	pf := &vm.ParkedFrame{
		ID:       s.ID,
		Function: s.Function,
		State:    vm.GeneratorState(s.State),
		PC:       s.PC,
		Delegate: s.Delegate,
		SP:       s.SP,
	}
	var err error
	if pf.Slots, err = dec.values(s.Slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	if pf.This, err = dec.value(s.This); err != nil {
		return nil, fmt.Errorf("decode this: %w", err)
	}
	if pf.Args, err = dec.values(s.Args); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	for _, h := range s.Handlers {
		pf.Handlers = append(pf.Handlers, vm.Handler{Catch: h.Catch, Finally: h.Finally, SP: h.SP})
	}
	return pf, nil
}

func (dec *decoder) fill(target vm.Value, entry Entry) error {
	values, err := dec.values(entry.Values)
	if err != nil {
		return err
	}
	if entry.Array {
		target.AsArray().Elems = values
		return nil
	}
	if len(entry.Keys) != len(values) {
		return fmt.Errorf("%d keys for %d values", len(entry.Keys), len(values))
	}
	o := target.AsObject()
	for i, k := range entry.Keys {
		o.Set(k, values[i])
	}
	if len(entry.Internal) > 0 {
		if o.Internal, err = dec.values(entry.Internal); err != nil {
			return err
		}
	}
	return nil
}

func (dec *decoder) values(ws []Value) ([]vm.Value, error) {
	out := make([]vm.Value, len(ws))
	for i, w := range ws {
		v, err := dec.value(w)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (dec *decoder) value(w Value) (vm.Value, error) {
	switch w.Tag {
	case TagUndefined:
		return vm.Undefined, nil
	case TagNull:
		return vm.Null, nil
	case TagEmpty:
		return vm.Empty, nil
	case TagBool:
		return vm.Bool(w.Num != 0), nil
	case TagNumber:
		return vm.Number(w.Num), nil
	case TagString:
		return vm.String(w.Str), nil
	case TagObject, TagArray:
		if w.Ref < 0 || w.Ref >= len(dec.objects) {
			return vm.Undefined, fmt.Errorf("heap reference %d out of range", w.Ref)
		}
		v := dec.objects[w.Ref]
		if (w.Tag == TagArray) != (v.Kind() == vm.KindArray) {
			return vm.Undefined, fmt.Errorf("heap reference %d has the wrong kind", w.Ref)
		}
		return v, nil
	case TagFunction:
		if w.Ref < 0 || w.Ref >= len(dec.prog.Functions) {
			return vm.Undefined, fmt.Errorf("function %d out of range", w.Ref)
		}
		return vm.FunctionValue(dec.prog.Functions[w.Ref]), nil
	case TagNative:
		v, ok := dec.engine.LookupBuiltin(w.Str)
		if !ok {
			return vm.Undefined, fmt.Errorf("unknown builtin %q", w.Str)
		}
		return v, nil
	}
	return vm.Undefined, fmt.Errorf("unknown value tag %d", w.Tag)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
