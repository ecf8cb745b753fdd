package vm

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the dynamic type of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindEmpty // internal sentinel, never observable from scripts
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
	KindFunction
	KindNative
	KindGenerator
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindEmpty:     "empty",
	KindBool:      "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindObject:    "object",
	KindArray:     "array",
	KindFunction:  "function",
	KindNative:    "native",
	KindGenerator: "generator",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged script value. The zero Value is undefined.
//
// Primitive payloads live inline (num for numbers and booleans, str for
// strings); reference kinds keep a pointer in ref.
type Value struct {
	kind Kind
	num  float64
	str  string
	ref  any
}

// Pre-defined values
var (
	Undefined = Value{}
	Null      = Value{kind: KindNull}
	Empty     = Value{kind: KindEmpty}
	True      = Value{kind: KindBool, num: 1}
	False     = Value{kind: KindBool}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Number returns a number value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns true or false.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// ObjectValue wraps an object.
func ObjectValue(o *Object) Value { return Value{kind: KindObject, ref: o} }

// ArrayValue wraps an array.
func ArrayValue(a *Array) Value { return Value{kind: KindArray, ref: a} }

// FunctionValue wraps a compiled script function.
func FunctionValue(fn *Function) Value { return Value{kind: KindFunction, ref: fn} }

// NativeValue wraps a Go function.
func NativeValue(n *Native) Value { return Value{kind: KindNative, ref: n} }

// GeneratorValue wraps a generator.
func GeneratorValue(g *Generator) Value { return Value{kind: KindGenerator, ref: g} }

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsEmpty() bool     { return v.kind == KindEmpty }
func (v Value) IsNumber() bool    { return v.kind == KindNumber }
func (v Value) IsString() bool    { return v.kind == KindString }

// IsNullish reports whether v is undefined or null.
func (v Value) IsNullish() bool { return v.kind == KindUndefined || v.kind == KindNull }

// IsCallable reports whether v can be invoked.
func (v Value) IsCallable() bool { return v.kind == KindFunction || v.kind == KindNative }

// AsNumber returns the numeric payload. It panics on non-numbers.
func (v Value) AsNumber() float64 {
	if v.kind != KindNumber {
		panic("Value.AsNumber: not a number: " + v.kind.String())
	}
	return v.num
}

// AsString returns the string payload. It panics on non-strings.
func (v Value) AsString() string {
	if v.kind != KindString {
		panic("Value.AsString: not a string: " + v.kind.String())
	}
	return v.str
}

// AsBool returns the boolean payload. It panics on non-booleans.
func (v Value) AsBool() bool {
	if v.kind != KindBool {
		panic("Value.AsBool: not a boolean: " + v.kind.String())
	}
	return v.num != 0
}

// AsObject returns the object or nil.
func (v Value) AsObject() *Object {
	o, _ := v.ref.(*Object)
	return o
}

// AsArray returns the array or nil.
func (v Value) AsArray() *Array {
	a, _ := v.ref.(*Array)
	return a
}

// AsFunction returns the script function or nil.
func (v Value) AsFunction() *Function {
	fn, _ := v.ref.(*Function)
	return fn
}

// AsNative returns the native function or nil.
func (v Value) AsNative() *Native {
	n, _ := v.ref.(*Native)
	return n
}

// AsGenerator returns the generator or nil.
func (v Value) AsGenerator() *Generator {
	g, _ := v.ref.(*Generator)
	return g
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// Truthy applies the script truthiness rules.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindUndefined, KindNull, KindEmpty:
		return false
	case KindBool:
		return v.num != 0
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindString:
		return v.str != ""
	default:
		return true
	}
}

// ToNumber converts v to a number.
func (v Value) ToNumber() float64 {
	switch v.kind {
	case KindNumber, KindBool:
		return v.num
	case KindNull:
		return 0
	case KindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0
		}
		switch s {
		case "Infinity", "+Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}

// ToString converts v to its script string form.
func (v Value) ToString() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindEmpty:
		return "<empty>"
	case KindBool:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.num)
	case KindString:
		return v.str
	case KindObject:
		o := v.ref.(*Object)
		if o.Class == ClassError {
			name := o.Get("name").ToString()
			msg := o.Get("message").ToString()
			if msg == "" {
				return name
			}
			return name + ": " + msg
		}
		return "[object Object]"
	case KindArray:
		a := v.ref.(*Array)
		parts := make([]string, len(a.Elems))
		for i, e := range a.Elems {
			if !e.IsNullish() {
				parts[i] = e.ToString()
			}
		}
		return strings.Join(parts, ",")
	case KindFunction:
		return "function " + v.ref.(*Function).Name + "() { [bytecode] }"
	case KindNative:
		return "function " + v.ref.(*Native).Name + "() { [native code] }"
	case KindGenerator:
		return "[object Generator]"
	}
	return "?"
}

// FormatNumber renders n the way scripts print numbers.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == 0:
		return "0"
	}
	abs := math.Abs(n)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	s := strconv.FormatFloat(n, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	exp = strings.TrimLeft(exp[1:], "0")
	return mant + "e" + string(sign) + exp
}

// TypeOf returns the result of the typeof operator.
func (v Value) TypeOf() string {
	switch v.kind {
	case KindUndefined, KindEmpty:
		return "undefined"
	case KindNull, KindObject, KindArray, KindGenerator:
		return "object"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction, KindNative:
		return "function"
	}
	return "undefined"
}

// StrictEquals implements ===.
func StrictEquals(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull, KindEmpty:
		return true
	case KindBool, KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	default:
		return a.ref == b.ref
	}
}

// LooseEquals implements ==. Only the nullish and number/string coercions
// are supported.
func LooseEquals(a, b Value) bool {
	if a.IsNullish() && b.IsNullish() {
		return true
	}
	if a.kind == b.kind {
		return StrictEquals(a, b)
	}
	switch {
	case a.kind == KindNumber && b.kind == KindString,
		a.kind == KindString && b.kind == KindNumber,
		a.kind == KindBool || b.kind == KindBool:
		if a.IsNullish() || b.IsNullish() {
			return false
		}
		return a.ToNumber() == b.ToNumber()
	}
	return false
}

// ---------------------------------------------------------------------------
// Display
// ---------------------------------------------------------------------------

// Inspect renders v for diagnostics: strings are quoted and objects are
// expanded one level at a time.
func (v Value) Inspect() string {
	var sb strings.Builder
	inspect(&sb, v, 0)
	return sb.String()
}

const maxInspectDepth = 4

func inspect(sb *strings.Builder, v Value, depth int) {
	switch v.kind {
	case KindString:
		sb.WriteString(strconv.Quote(v.str))
	case KindObject:
		o := v.ref.(*Object)
		if o.Class == ClassError {
			sb.WriteString(v.ToString())
			return
		}
		if depth >= maxInspectDepth {
			sb.WriteString("[Object]")
			return
		}
		if o.Len() == 0 {
			sb.WriteString("{}")
			return
		}
		sb.WriteString("{ ")
		for i, k := range o.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			inspect(sb, o.Get(k), depth+1)
		}
		sb.WriteString(" }")
	case KindArray:
		a := v.ref.(*Array)
		if depth >= maxInspectDepth {
			sb.WriteString("[Array]")
			return
		}
		sb.WriteByte('[')
		for i, e := range a.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			inspect(sb, e, depth+1)
		}
		sb.WriteByte(']')
	case KindFunction:
		sb.WriteString("[Function: " + v.ref.(*Function).Name + "]")
	case KindNative:
		sb.WriteString("[Function: " + v.ref.(*Native).Name + "]")
	case KindGenerator:
		sb.WriteString("[Generator " + v.ref.(*Generator).State().String() + "]")
	default:
		sb.WriteString(v.ToString())
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return v.Inspect()
}
