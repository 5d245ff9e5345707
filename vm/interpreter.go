package vm

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"
)

// DefaultMaxDepth bounds the call stack unless WithMaxDepth overrides it.
const DefaultMaxDepth = 1024

// State is the execution state of a Machine.
type State uint8

const (
	Running State = iota
	Halted
	Faulted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	}
	return "unknown"
}

// Hook is called at every fetch-decode boundary with the address and the
// instruction about to execute. A non-nil error stops the machine with an
// Interrupted fault wrapping that error.
type Hook func(pc int, in Instruction) error

// Stats reports execution counters.
type Stats struct {
	Dispatched int64 // instructions dispatched, including a faulting one
	PeakDepth  int   // deepest call stack reached
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures a Machine.
type Option func(*Machine)

// WithHook installs a per-instruction hook.
func WithHook(h Hook) Option {
	return func(m *Machine) { m.hook = h }
}

// WithBudget limits the number of dispatched instructions. Zero means no
// limit.
func WithBudget(n int64) Option {
	return func(m *Machine) { m.budget = n }
}

// WithMaxDepth limits the call stack depth.
func WithMaxDepth(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxDepth = n
		}
	}
}

// WithTrace logs every dispatched instruction at debug level.
func WithTrace(on bool) Option {
	return func(m *Machine) { m.trace = on }
}

// WithLogger replaces the machine's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// frame is the execution state of one function activation. Its registers
// are regs[base : base+frameSize].
type frame struct {
	fn       *Function
	base     int
	returnPC int
	dst      Register // caller register receiving the result
}

// ---------------------------------------------------------------------------
// Machine: Bytecode execution engine
// ---------------------------------------------------------------------------

// Machine executes one chunk. A Machine is not safe for concurrent use; run
// one Machine per goroutine. The chunk itself may be shared.
type Machine struct {
	chunk     *Chunk
	frameSize int
	validated bool

	regs   []Value
	frames []frame
	pc     int
	state  State
	result Value
	err    error

	hook     Hook
	budget   int64
	maxDepth int
	trace    bool
	log      commonlog.Logger

	stats Stats
}

// New creates a machine for chunk.
func New(chunk *Chunk, opts ...Option) *Machine {
	m := &Machine{
		chunk:    chunk,
		maxDepth: DefaultMaxDepth,
		log:      commonlog.GetLogger("marte.vm"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Execute runs chunk's entry function with args on a fresh machine.
func Execute(chunk *Chunk, args ...Value) (Value, error) {
	return New(chunk).Run(args...)
}

// State returns the machine's execution state.
func (m *Machine) State() State { return m.state }

// PC returns the address of the next (or faulting) instruction.
func (m *Machine) PC() int { return m.pc }

// Stats returns execution counters of the last run.
func (m *Machine) Stats() Stats { return m.stats }

// Result returns the value of the last halted run.
func (m *Machine) Result() Value { return m.result }

// Err returns the fault of the last run, if any.
func (m *Machine) Err() error { return m.err }

// Depth returns the current call stack depth.
func (m *Machine) Depth() int { return len(m.frames) }

// Registers returns a snapshot of the current frame's registers.
func (m *Machine) Registers() []Value {
	if len(m.frames) == 0 {
		return nil
	}
	f := m.frames[len(m.frames)-1]
	out := make([]Value, f.fn.NumRegisters)
	copy(out, m.regs[f.base:f.base+f.fn.NumRegisters])
	return out
}

// Run executes the entry function with args until it returns or faults.
func (m *Machine) Run(args ...Value) (Value, error) {
	return m.RunContext(context.Background(), args...)
}

// RunContext is Run with cancellation: the context is checked between
// dispatches and a cancelled context stops the machine with Interrupted.
func (m *Machine) RunContext(ctx context.Context, args ...Value) (Value, error) {
	if err := m.start(args); err != nil {
		return Null, err
	}
	done := ctx.Done()
	code := m.chunk.Code

	for m.state == Running {
		if done != nil {
			select {
			case <-done:
				m.fail(&RuntimeError{Kind: Interrupted, PC: m.pc, Msg: "context done", Cause: ctx.Err()})
				continue
			default:
			}
		}
		if m.pc < 0 || m.pc >= len(code) {
			m.fail(&RuntimeError{Kind: InvalidProgram, PC: m.pc, Msg: "pc outside code"})
			continue
		}
		in := code[m.pc]
		if m.budget > 0 && m.stats.Dispatched >= m.budget {
			m.fail(&RuntimeError{Kind: BudgetExceeded, PC: m.pc, Msg: "budget exhausted"})
			continue
		}
		if m.hook != nil {
			if err := m.hook(m.pc, in); err != nil {
				m.fail(&RuntimeError{Kind: Interrupted, PC: m.pc, Msg: err.Error(), Cause: err})
				continue
			}
		}
		if m.trace && m.log.AllowLevel(commonlog.Debug) {
			m.log.Debugf("%04d %s", m.pc, in)
		}

		m.stats.Dispatched++
		if err := m.step(in); err != nil {
			err.PC = m.pc
			m.fail(err)
		}
	}

	if m.state == Faulted {
		return Null, m.err
	}
	if m.log.AllowLevel(commonlog.Debug) {
		m.log.Debugf("halted after %d instructions: %s", m.stats.Dispatched, m.result)
	}
	return m.result, nil
}

// start resets the machine and pushes the entry frame.
func (m *Machine) start(args []Value) error {
	m.regs = m.regs[:0]
	m.frames = m.frames[:0]
	m.result = Null
	m.err = nil
	m.stats = Stats{}
	m.state = Running
	m.pc = 0

	if !m.validated {
		if err := m.chunk.Validate(); err != nil {
			m.fail(&RuntimeError{Kind: InvalidProgram, PC: -1, Msg: err.Error(), Cause: err})
			return m.err
		}
		m.validated = true
		m.frameSize = m.chunk.FrameSize()
	}

	entry := m.chunk.Functions[0]
	if len(args) != len(entry.Params) {
		m.fail(&RuntimeError{Kind: ArityMismatch, PC: -1,
			Msg: arityMessage(entry, len(args))})
		return m.err
	}
	base := m.pushFrame(entry, 0, 0)
	copy(m.regs[base:], args)
	m.pc = int(entry.Entry)
	return nil
}

func (m *Machine) fail(err *RuntimeError) {
	m.state = Faulted
	m.err = err
	m.log.Debugf("faulted: %s", err)
}

func (m *Machine) pushFrame(fn *Function, returnPC int, dst Register) int {
	base := len(m.regs)
	for i := 0; i < m.frameSize; i++ {
		m.regs = append(m.regs, Null)
	}
	m.frames = append(m.frames, frame{fn: fn, base: base, returnPC: returnPC, dst: dst})
	if len(m.frames) > m.stats.PeakDepth {
		m.stats.PeakDepth = len(m.frames)
	}
	return base
}

func arityMessage(fn *Function, got int) string {
	name := fn.Name
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("%s expects %d arguments, got %d", name, len(fn.Params), got)
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// step executes one instruction. On error nothing has been written.
func (m *Machine) step(in Instruction) *RuntimeError {
	f := &m.frames[len(m.frames)-1]
	r := m.regs[f.base : f.base+m.frameSize]
	k := m.chunk.Constants
	next := m.pc + 1

	switch in.Op {
	case OpNop:

	case OpJump:
		next = int(in.Addr)

	case OpJumpIf, OpJumpIfNot:
		c := r[in.A]
		if c.kind != KindBool {
			return fault(TypeMismatch, "condition is %s, want bool", c.kind)
		}
		if c.Bool() == (in.Op == OpJumpIf) {
			next = int(in.Addr)
		}

	case OpJumpIfSome:
		if !r[in.A].IsNull() {
			next = int(in.Addr)
		}

	case OpJumpIfNone:
		if r[in.A].IsNull() {
			next = int(in.Addr)
		}

	case OpInt:
		r[in.A] = FromInt(int64(in.IntValue()))

	case OpBool:
		r[in.A] = FromBool(in.B != 0)

	case OpChar:
		r[in.A] = FromChar(in.CharValue())

	case OpString:
		r[in.A] = k[in.Addr]

	case OpBinary:
		v, err := EvalBinary(in.BinaryOp(), r[in.B], r[in.C])
		if err != nil {
			return asFault(err)
		}
		r[in.A] = v

	case OpUnary:
		v, err := EvalUnary(in.UnaryOp(), r[in.B])
		if err != nil {
			return asFault(err)
		}
		r[in.A] = v

	case OpNull:
		r[in.A] = Null

	case OpMove:
		r[in.A] = r[in.B]

	case OpConst:
		r[in.A] = k[in.Addr].Clone()

	case OpTuple:
		r[in.A] = NewTuple(append([]Value(nil), r[in.B:int(in.B)+int(in.C)]...))

	case OpVector:
		r[in.A] = NewVector(append([]Value(nil), r[in.B:int(in.B)+int(in.C)]...))

	case OpObject:
		keys := k[in.Addr].Tuple()
		o := &Object{}
		for i, key := range keys {
			o.Set(key.str, r[int(in.B)+i])
		}
		r[in.A] = FromObject(o)

	case OpGetField:
		v, err := GetField(r[in.B], k[in.Addr].str)
		if err != nil {
			return asFault(err)
		}
		r[in.A] = v

	case OpSetField:
		if err := SetField(r[in.A], k[in.Addr].str, r[in.B]); err != nil {
			return asFault(err)
		}

	case OpGetIndex:
		v, err := GetIndex(r[in.B], r[in.C])
		if err != nil {
			return asFault(err)
		}
		r[in.A] = v

	case OpSetIndex:
		if err := SetIndex(r[in.A], r[in.B], r[in.C]); err != nil {
			return asFault(err)
		}

	case OpClosure:
		fn := m.chunk.Functions[in.Addr]
		c := &Closure{Fn: fn, Index: int(in.Addr), Captures: make([]Value, len(fn.Captures))}
		for i, cp := range fn.Captures {
			if cp.Source == in.A {
				// Captures its own destination: a recursive binding.
				c.Captures[i] = FromClosure(c)
			} else {
				c.Captures[i] = r[cp.Source]
			}
		}
		r[in.A] = FromClosure(c)

	case OpCall:
		return m.call(in)

	case OpReturn:
		m.ret(r[in.A])
		return nil

	case OpIter:
		v, err := newCursor(r[in.B])
		if err != nil {
			return asFault(err)
		}
		r[in.A] = v

	case OpNext:
		cur := r[in.B]
		if cur.kind != kindCursor {
			return fault(TypeMismatch, "next on %s", cur.kind)
		}
		r[in.A] = cur.ref.(*cursor).next()

	default:
		return fault(InvalidProgram, "unknown opcode 0x%02X", byte(in.Op))
	}

	m.pc = next
	return nil
}

func asFault(err error) *RuntimeError {
	if rt, ok := err.(*RuntimeError); ok {
		return rt
	}
	return &RuntimeError{Kind: InvalidProgram, PC: -1, Msg: err.Error(), Cause: err}
}

// call enters the closure in R[B] with the C registers after it as
// arguments. Arguments land in the callee's registers 0..argc-1 and the
// captures right after them.
func (m *Machine) call(in Instruction) *RuntimeError {
	caller := m.frames[len(m.frames)-1]
	callee := m.regs[caller.base+int(in.B)]
	if callee.kind != KindClosure {
		return fault(TypeMismatch, "cannot call %s", callee.kind)
	}
	c := callee.Closure()
	if int(in.C) != len(c.Fn.Params) {
		return fault(ArityMismatch, "%s", arityMessage(c.Fn, int(in.C)))
	}
	if len(m.frames) >= m.maxDepth {
		return fault(StackOverflow, "call depth exceeds %d", m.maxDepth)
	}

	base := m.pushFrame(c.Fn, m.pc+1, in.A)
	args := caller.base + int(in.B) + 1
	copy(m.regs[base:], m.regs[args:args+int(in.C)])
	copy(m.regs[base+int(in.C):], c.Captures)
	m.pc = int(c.Fn.Entry)
	return nil
}

// ret leaves the current frame. Returning from the entry frame halts; its
// registers stay in place for inspection.
func (m *Machine) ret(v Value) {
	if len(m.frames) == 1 {
		m.result = v
		m.state = Halted
		return
	}
	f := m.frames[len(m.frames)-1]
	clear(m.regs[f.base:])
	m.regs = m.regs[:f.base]
	m.frames = m.frames[:len(m.frames)-1]

	caller := m.frames[len(m.frames)-1]
	m.regs[caller.base+int(f.dst)] = v
	m.pc = f.returnPC
}
