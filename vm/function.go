package vm

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/btree"

	"github.com/chazu/genvm/vm/execmem"
)

// ---------------------------------------------------------------------------
// Function: compiled script function metadata
// ---------------------------------------------------------------------------

// Function is a compiled script function. It is immutable once the
// compiler hands it over and may be shared by any number of frames.
type Function struct {
	Name      string
	Index     int  // position in Program.Functions
	Generator bool // declared with function*

	// Signature
	ParamCount int
	LocalCount int
	MaxStack   int // maximum operand stack depth, from Verify

	resumeDepth map[int]int // RESUME offset -> operand stack depth, from Verify

	// Compiled code
	Code      []byte
	Constants []Value

	// Debugging support
	SlotNames []string // parameter and local names, in slot order
	lines     *btree.BTreeG[SourceLoc]

	program *Program
}

// SourceLoc maps a bytecode offset to a source line.
type SourceLoc struct {
	Offset int
	Line   int
}

func sourceLocLess(a, b SourceLoc) bool { return a.Offset < b.Offset }

// RequiredSlotCount is the exact number of value slots a frame for fn
// holds: the incoming-value slot, parameters, locals, and the operand stack.
func (fn *Function) RequiredSlotCount() int {
	return 1 + fn.ParamCount + fn.LocalCount + fn.MaxStack
}

// StackBase is the slot index of the bottom of the operand stack.
func (fn *Function) StackBase() int {
	return 1 + fn.ParamCount + fn.LocalCount
}

// Program returns the program fn belongs to.
func (fn *Function) Program() *Program {
	return fn.program
}

// Closed reports whether fn belongs to a program that has been closed.
func (fn *Function) Closed() bool {
	return fn.program != nil && fn.program.Closed()
}

// AddLine records that the instruction at offset starts source line line.
func (fn *Function) AddLine(offset, line int) {
	if fn.lines == nil {
		fn.lines = btree.NewG(8, sourceLocLess)
	}
	fn.lines.ReplaceOrInsert(SourceLoc{Offset: offset, Line: line})
}

// LineFor returns the source line of the instruction at pc, or 0.
func (fn *Function) LineFor(pc int) int {
	if fn.lines == nil {
		return 0
	}
	line := 0
	fn.lines.DescendLessOrEqual(SourceLoc{Offset: pc}, func(loc SourceLoc) bool {
		line = loc.Line
		return false
	})
	return line
}

// Lines returns the line table in offset order.
func (fn *Function) Lines() []SourceLoc {
	if fn.lines == nil {
		return nil
	}
	out := make([]SourceLoc, 0, fn.lines.Len())
	fn.lines.Ascend(func(loc SourceLoc) bool {
		out = append(out, loc)
		return true
	})
	return out
}

// Disassemble returns a listing of fn.
func (fn *Function) Disassemble() string {
	var sb strings.Builder
	kind := "function"
	if fn.Generator {
		kind = "function*"
	}
	fmt.Fprintf(&sb, "%s %s (#%d) params=%d locals=%d stack=%d slots=%d\n",
		kind, fn.Name, fn.Index, fn.ParamCount, fn.LocalCount, fn.MaxStack, fn.RequiredSlotCount())
	if len(fn.SlotNames) > 0 {
		sb.WriteString("  slots:")
		for i, name := range fn.SlotNames {
			fmt.Fprintf(&sb, " %d=%s", i+1, name)
		}
		sb.WriteByte('\n')
	}
	for _, line := range strings.Split(Disassemble(fn.Code, fn.Constants), "\n") {
		if line == "" {
			continue
		}
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Program: a compilation unit
// ---------------------------------------------------------------------------

// ErrProgramClosed is returned when running a program whose sealed code
// has been released.
var ErrProgramClosed = errors.New("program is closed")

// Program is a set of compiled functions. Functions[0] is the top-level
// script body.
type Program struct {
	Functions []*Function

	region *execmem.Region
	closed bool
	hash   string
}

// NewProgram links fns into a program and assigns their indices.
func NewProgram(fns ...*Function) *Program {
	p := &Program{Functions: fns}
	for i, fn := range fns {
		fn.Index = i
		fn.program = p
	}
	return p
}

// Main returns the top-level function.
func (p *Program) Main() *Function {
	return p.Functions[0]
}

// Lookup finds a function by name.
func (p *Program) Lookup(name string) (*Function, bool) {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// Sealed reports whether the code lives in an executable, read-only region.
func (p *Program) Sealed() bool {
	return p.region != nil
}

// Seal copies every function's code into one executable region and flips
// it to read-only. The functions then run directly out of that region.
func (p *Program) Seal() error {
	if p.closed {
		return ErrProgramClosed
	}
	if p.region != nil {
		return nil
	}
	size := 0
	for _, fn := range p.Functions {
		size += len(fn.Code)
	}
	if size == 0 {
		return nil
	}
	region, err := execmem.Allocate(size)
	if err != nil {
		return fmt.Errorf("seal program: %w", err)
	}
	offsets := make([]int, len(p.Functions))
	off := 0
	for i, fn := range p.Functions {
		offsets[i] = off
		if err := region.Write(off, fn.Code); err != nil {
			region.Free()
			return fmt.Errorf("seal program: %w", err)
		}
		off += len(fn.Code)
	}
	if err := region.MakeExecutable(); err != nil {
		region.Free()
		return fmt.Errorf("seal program: %w", err)
	}
	mem := region.Bytes()
	for i, fn := range p.Functions {
		fn.Code = mem[offsets[i] : offsets[i]+len(fn.Code) : offsets[i]+len(fn.Code)]
	}
	p.region = region
	return nil
}

// Region returns the sealed code region, or nil.
func (p *Program) Region() *execmem.Region {
	return p.region
}

// Close releases the sealed code region. A closed program cannot run.
func (p *Program) Close() error {
	if p.closed {
		return nil
	}
	p.Hash() // computed while the code is still mapped
	p.closed = true
	if p.region == nil {
		return nil
	}
	for _, fn := range p.Functions {
		fn.Code = nil
	}
	err := p.region.Free()
	p.region = nil
	return err
}

// Closed reports whether Close has been called.
func (p *Program) Closed() bool {
	return p.closed
}

// Hash identifies the program's code and constants. Snapshots record it so
// a parked frame is never resumed against different bytecode.
func (p *Program) Hash() string {
	if p.hash != "" {
		return p.hash
	}
	h := sha256.New()
	var buf [8]byte
	writeInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}
	for _, fn := range p.Functions {
		h.Write([]byte(fn.Name))
		writeInt(fn.ParamCount)
		writeInt(fn.LocalCount)
		writeInt(fn.MaxStack)
		if fn.Generator {
			writeInt(1)
		} else {
			writeInt(0)
		}
		writeInt(len(fn.Code))
		h.Write(fn.Code)
		writeInt(len(fn.Constants))
		for _, c := range fn.Constants {
			writeInt(int(c.kind))
			switch c.kind {
			case KindNumber, KindBool:
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c.num))
				h.Write(buf[:])
			case KindString:
				writeInt(len(c.str))
				h.Write([]byte(c.str))
			}
		}
	}
	p.hash = hex.EncodeToString(h.Sum(nil))
	return p.hash
}
