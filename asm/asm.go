// Package asm is the macro-assembler contract kernels generate code
// against: a small fixed instruction set (register moves, loads and
// stores relative to an instance base, arithmetic, control flow, and
// the task start/wait/sync trampolines the emission driver needs for
// asynchronous steps) plus a textual renderer for debugging.
package asm

import (
	"github.com/nikandfor/hacked/hfmt"

	"github.com/myelin-ml/myelin/internal/bitset"
)

// Reg is a virtual register. Register allocation is the Assembler's
// job; kernels only ever see the Regs it hands out.
type Reg int

// Label is a branch target within one Program.
type Label int

// Instr is one generated instruction. The concrete types below are
// the whole instruction set the runtime and its kernels need.
type Instr any

type (
	Imm struct {
		Out  Reg
		Word uint64
	}

	Mov struct {
		Out Reg
		In  Reg
	}

	// LoadInstancePtr materializes the base address of the running
	// cell's instance (host or device, per which assembler produced
	// it) into Out.
	LoadInstancePtr struct {
		Out Reg
	}

	Load struct {
		Out    Reg
		Base   Reg
		Offset int64
	}

	Store struct {
		Base   Reg
		Offset int64
		In     Reg
	}

	BinOp struct {
		Op  string // "add", "mul", "cmp", ...
		Out Reg
		In  [2]Reg
	}

	UnOp struct {
		Op  string
		Out Reg
		In  Reg
	}

	// TernOp covers the fused multiply-add/sub instruction forms
	// (spec's MulAdd132/213/231 and MulSub132/213/231): three inputs,
	// one fused instruction.
	TernOp struct {
		Op  string
		Out Reg
		In  [3]Reg
	}

	Jump struct {
		Label Label
	}

	JumpIf struct {
		Cond  string
		Label Label
		In    Reg
	}

	PlaceLabel struct {
		Label Label
	}

	Call struct {
		Target string
		Args   []Reg
	}

	// TaskStart launches step Entry as an asynchronous task; Task
	// identifies the matching TaskWait.
	TaskStart struct {
		Task  int
		Entry string
	}

	TaskWait struct {
		Task int
	}

	// Sync emits a host/device synchronization barrier.
	Sync struct {
		Device bool
	}

	Ret struct{}
)

// Program is one generated function: a cell or kernel body.
type Program struct {
	Name string
	Body []Instr
}

// Assembler accumulates instructions into a Program and tracks virtual
// register allocation and usage, the way kernels and the emission
// driver are expected to share one.
type Assembler struct {
	Device bool // true when generating device-side code

	prog      Program
	nextReg   Reg
	nextLabel Label
	used      bitset.Set[Reg]
}

// New returns an assembler for one fresh Program. device selects
// whether LoadInstancePtr and Sync target device memory.
func New(name string, device bool) *Assembler {
	return &Assembler{
		Device: device,
		prog:   Program{Name: name},
		used:   bitset.MakeSet[Reg](0),
	}
}

// Alloc hands out an unused virtual register and marks it used.
func (a *Assembler) Alloc() Reg {
	r := a.nextReg
	a.nextReg++
	a.used.Set(r)

	return r
}

// Free removes r from the set of live registers reported by Used.
// Alloc never hands out a freed register again.
func (a *Assembler) Free(r Reg) { a.used.Clear(r) }

// Used reports the set of currently live virtual registers.
func (a *Assembler) Used() bitset.Set[Reg] { return a.used }

// NewLabel reserves a fresh branch target; it must later be placed
// exactly once with PlaceLabel.
func (a *Assembler) NewLabel() Label {
	l := a.nextLabel
	a.nextLabel++

	return l
}

func (a *Assembler) emit(i Instr) { a.prog.Body = append(a.prog.Body, i) }

func (a *Assembler) Imm(word uint64) Reg {
	r := a.Alloc()
	a.emit(Imm{Out: r, Word: word})

	return r
}

func (a *Assembler) Mov(dst, src Reg) { a.emit(Mov{Out: dst, In: src}) }

// LoadInstancePtr materializes the running cell's instance base
// address into a fresh register.
func (a *Assembler) LoadInstancePtr() Reg {
	r := a.Alloc()
	a.emit(LoadInstancePtr{Out: r})

	return r
}

func (a *Assembler) Load(base Reg, offset int64) Reg {
	r := a.Alloc()
	a.emit(Load{Out: r, Base: base, Offset: offset})

	return r
}

func (a *Assembler) Store(base Reg, offset int64, in Reg) {
	a.emit(Store{Base: base, Offset: offset, In: in})
}

func (a *Assembler) BinOp(op string, a1, a2 Reg) Reg {
	r := a.Alloc()
	a.emit(BinOp{Op: op, Out: r, In: [2]Reg{a1, a2}})

	return r
}

func (a *Assembler) UnOp(op string, in Reg) Reg {
	r := a.Alloc()
	a.emit(UnOp{Op: op, Out: r, In: in})

	return r
}

func (a *Assembler) TernOp(op string, in0, in1, in2 Reg) Reg {
	r := a.Alloc()
	a.emit(TernOp{Op: op, Out: r, In: [3]Reg{in0, in1, in2}})

	return r
}

func (a *Assembler) Jump(l Label) { a.emit(Jump{Label: l}) }

func (a *Assembler) JumpIf(cond string, l Label, in Reg) {
	a.emit(JumpIf{Cond: cond, Label: l, In: in})
}

func (a *Assembler) PlaceLabel(l Label) { a.emit(PlaceLabel{Label: l}) }

func (a *Assembler) Call(target string, args ...Reg) {
	a.emit(Call{Target: target, Args: args})
}

// StartTask emits a trampoline launching entry asynchronously under
// task id.
func (a *Assembler) StartTask(task int, entry string) {
	a.emit(TaskStart{Task: task, Entry: entry})
}

// WaitTask emits a trampoline blocking until task id has completed.
func (a *Assembler) WaitTask(task int) { a.emit(TaskWait{Task: task}) }

// SyncHost/SyncDevice emit a synchronization barrier for the named
// side of a host/device transfer.
func (a *Assembler) SyncDevice() { a.emit(Sync{Device: true}) }
func (a *Assembler) SyncHost()   { a.emit(Sync{Device: false}) }

func (a *Assembler) Ret() { a.emit(Ret{}) }

// Program returns the assembled instruction sequence.
func (a *Assembler) Program() Program { return a.prog }

// String renders the program as a readable instruction listing, for
// debugging and tests; it is not a real machine encoding.
func (p Program) String() string {
	b := hfmt.Appendf(nil, "%s:\n", p.Name)

	for _, instr := range p.Body {
		b = appendInstr(b, instr)
	}

	return string(b)
}

func appendInstr(b []byte, instr Instr) []byte {
	switch x := instr.(type) {
	case Imm:
		return hfmt.Appendf(b, "\tIMM\tr%d, #%d\n", x.Out, x.Word)
	case Mov:
		return hfmt.Appendf(b, "\tMOV\tr%d, r%d\n", x.Out, x.In)
	case LoadInstancePtr:
		return hfmt.Appendf(b, "\tINSTPTR\tr%d\n", x.Out)
	case Load:
		return hfmt.Appendf(b, "\tLOAD\tr%d, [instance+%d]\n", x.Out, x.Offset)
	case Store:
		return hfmt.Appendf(b, "\tSTORE\t[instance+%d], r%d\n", x.Offset, x.In)
	case BinOp:
		return hfmt.Appendf(b, "\t%s\tr%d, r%d, r%d\n", x.Op, x.Out, x.In[0], x.In[1])
	case UnOp:
		return hfmt.Appendf(b, "\t%s\tr%d, r%d\n", x.Op, x.Out, x.In)
	case TernOp:
		return hfmt.Appendf(b, "\t%s\tr%d, r%d, r%d, r%d\n", x.Op, x.Out, x.In[0], x.In[1], x.In[2])
	case Jump:
		return hfmt.Appendf(b, "\tB\tL%d\n", x.Label)
	case JumpIf:
		return hfmt.Appendf(b, "\tB.%s\tr%d, L%d\n", x.Cond, x.In, x.Label)
	case PlaceLabel:
		return hfmt.Appendf(b, "L%d:\n", x.Label)
	case Call:
		return hfmt.Appendf(b, "\tCALL\t%s\n", x.Target)
	case TaskStart:
		return hfmt.Appendf(b, "\tTASK.START\t#%d, %s\n", x.Task, x.Entry)
	case TaskWait:
		return hfmt.Appendf(b, "\tTASK.WAIT\t#%d\n", x.Task)
	case Sync:
		if x.Device {
			return hfmt.Appendf(b, "\tSYNC.DEVICE\n")
		}

		return hfmt.Appendf(b, "\tSYNC.HOST\n")
	case Ret:
		return hfmt.Appendf(b, "\tRET\n")
	default:
		return hfmt.Appendf(b, "\t?%T\n", x)
	}
}
