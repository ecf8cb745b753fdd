package vm

// Object is a string-keyed property bag that remembers insertion order.
type Object struct {
	Class    string
	Internal []Value // engine-private state, not visible as properties
	keys     []string
	props    map[string]Value
}

// Object classes
const (
	ClassPlain         = "Object"
	ClassError         = "Error"
	ClassArrayIterator = "ArrayIterator"
)

// NewObjectOfClass creates an empty object of the given class.
func NewObjectOfClass(class string) *Object {
	return &Object{Class: class, props: make(map[string]Value)}
}

// NewObject creates an empty plain object.
func NewObject() *Object {
	return &Object{Class: ClassPlain, props: make(map[string]Value)}
}

// NewErrorObject creates an error object of shape {name, message}.
func NewErrorObject(name, message string) *Object {
	o := &Object{Class: ClassError, props: make(map[string]Value, 2)}
	o.Set("name", String(name))
	o.Set("message", String(message))
	return o
}

// IterResult builds an iterator-result object {value, done}.
func IterResult(value Value, done bool) Value {
	o := &Object{Class: ClassPlain, props: make(map[string]Value, 2)}
	o.Set("value", value)
	o.Set("done", Bool(done))
	return ObjectValue(o)
}

// Get returns the property or undefined.
func (o *Object) Get(key string) Value {
	return o.props[key]
}

// Lookup returns the property and whether it exists.
func (o *Object) Lookup(key string) (Value, bool) {
	v, ok := o.props[key]
	return v, ok
}

// Set creates or updates a property.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.props[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.props[key] = v
}

// Delete removes a property.
func (o *Object) Delete(key string) bool {
	if _, ok := o.props[key]; !ok {
		return false
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the property names in insertion order.
func (o *Object) Keys() []string {
	return o.keys
}

// Len returns the number of properties.
func (o *Object) Len() int {
	return len(o.keys)
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// Array is a dense list of values.
type Array struct {
	Elems []Value
}

// NewArray creates an array holding elems.
func NewArray(elems ...Value) *Array {
	return &Array{Elems: elems}
}

// Get returns the element at i or undefined when out of range.
func (a *Array) Get(i int) Value {
	if i < 0 || i >= len(a.Elems) {
		return Undefined
	}
	return a.Elems[i]
}

// Set stores v at i, growing the array with undefined as needed.
func (a *Array) Set(i int, v Value) {
	for len(a.Elems) <= i {
		a.Elems = append(a.Elems, Undefined)
	}
	a.Elems[i] = v
}

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// NativeFunc implements a function in Go. Script exceptions are raised with
// Engine.Throw and the returned value is then ignored.
type NativeFunc func(e *Engine, this Value, args []Value) Value

// Native is a named Go function callable from scripts.
type Native struct {
	Name string
	Fn   NativeFunc
}

// NewNative wraps fn as a script-callable value.
func NewNative(name string, fn NativeFunc) Value {
	return NativeValue(&Native{Name: name, Fn: fn})
}

// Arg returns args[i] or undefined.
func Arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}
