// Package vm implements the stack machine of spec.md §4.6: `VM{stack,
// frames, globals}` executing a compiled Chunk. It is an independent
// implementation of the same operational semantics as internal/eval — the
// two must agree on every observable Value (spec.md §8.P-Eval-VM-Equiv) —
// grounded on the teacher's Config/TelemetryLevel split (runtime/executor)
// adapted from command-plan execution to a fetch-decode-execute loop.
package vm

import (
	"fmt"

	"github.com/paiml/ruchy/internal/bytecode"
	"github.com/paiml/ruchy/internal/token"
	"github.com/paiml/ruchy/internal/value"
)

// VMErrorKind enumerates spec.md §4.8's VM error taxonomy.
type VMErrorKind int

const (
	StackUnderflow VMErrorKind = iota
	StackOverflow
	BadOpcode
	Trapped // wraps a RuntimeError-equivalent fault raised during execution
)

type VMError struct {
	Kind    VMErrorKind
	Message string
	Span    token.Span
}

func (e *VMError) Error() string { return e.Message }

func vmErr(kind VMErrorKind, span token.Span, format string, args ...interface{}) *VMError {
	return &VMError{Kind: kind, Message: fmt.Sprintf(format, args...), Span: span}
}

const maxStack = 1 << 16

// frame is one call's activation record: its chunk, instruction pointer,
// and the base offset into VM.stack where its locals region starts.
type frame struct {
	chunk *bytecode.Chunk
	ip    int
	base  int
}

// VM is spec.md §4.6's stack machine. globals is shared with the
// evaluator's Environment shape conceptually but kept as a plain map here
// since VM globals are never captured by reference the way eval's
// Environment chain is.
type VM struct {
	stack   []value.Value
	frames  []frame
	globals map[string]value.Value
}

// New creates a VM with empty global state.
func New() *VM {
	return &VM{globals: map[string]value.Value{}}
}

// Globals exposes the VM's global bindings for host inspection after Run.
func (vm *VM) Globals() map[string]value.Value { return vm.globals }

// CallFunction invokes a global closure by name, mirroring the evaluator's
// CallMain convention of running top-level code first (via Run, which
// populates globals with every compiled `fun`) and then entering a
// zero-or-more-argument function explicitly.
func (vm *VM) CallFunction(name string, args ...value.Value) (value.Value, error) {
	callee, ok := vm.globals[name]
	if !ok {
		return nil, vmErr(BadOpcode, token.Span{}, "no such global function %q", name)
	}
	if err := vm.push(callee); err != nil {
		return nil, err
	}
	for _, a := range args {
		if err := vm.push(a); err != nil {
			return nil, err
		}
	}
	if err := vm.call(len(args), token.Span{}); err != nil {
		return nil, err
	}
	return vm.execute()
}

// Run executes chunk as the top-level program and returns the last value
// left on the stack (Unit if the program never pushed one), matching the
// evaluator's Run() convention.
func (vm *VM) Run(chunk *bytecode.Chunk) (value.Value, error) {
	vm.frames = append(vm.frames, frame{chunk: chunk, ip: 0, base: 0})
	result, err := vm.execute()
	if err != nil {
		return nil, err
	}
	if len(vm.stack) == 0 {
		return value.Unit{}, nil
	}
	if result != nil {
		return result, nil
	}
	return vm.stack[len(vm.stack)-1], nil
}

func (vm *VM) push(v value.Value) error {
	if len(vm.stack) >= maxStack {
		return vmErr(StackOverflow, token.Span{}, "operand stack overflow")
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop(span token.Span) (value.Value, error) {
	if len(vm.stack) == 0 {
		return nil, vmErr(StackUnderflow, span, "operand stack underflow")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func materialize(c bytecode.Const) value.Value {
	switch c.Kind {
	case bytecode.ConstInt:
		return value.Integer{V: c.Int, Suffix: c.Suffix}
	case bytecode.ConstFloat:
		return value.Float{V: c.Float}
	case bytecode.ConstString:
		return value.NewString(c.Str)
	case bytecode.ConstBool:
		return value.Bool{V: c.Bool}
	case bytecode.ConstChar:
		return value.Char{V: c.Char}
	default:
		return value.Unit{}
	}
}

// execute runs the fetch-decode-execute loop to completion, reporting the
// program's final value once the outermost Return pops the last frame.
func (vm *VM) execute() (value.Value, error) {
	return vm.run(0)
}

// run is execute's general form: it drives the fetch-decode-execute loop
// until the frame stack unwinds back to targetDepth, rather than always to
// empty. A builtin method that takes a closure argument (Array.map, and
// friends in methods.go) calls run(depth-before-the-call) to re-enter this
// same loop for just the callee's frame, without disturbing the frames
// already in flight above it.
func (vm *VM) run(targetDepth int) (value.Value, error) {
	for len(vm.frames) > targetDepth {
		fr := &vm.frames[len(vm.frames)-1]
		if fr.ip >= len(fr.chunk.Code) {
			vm.frames = vm.frames[:len(vm.frames)-1]
			continue
		}
		instr := fr.chunk.Code[fr.ip]
		span := fr.chunk.Lines[fr.ip]
		fr.ip++
		switch instr.Op {
		case bytecode.OpLoadConst:
			if err := vm.push(materialize(fr.chunk.Constants[instr.Operand])); err != nil {
				return nil, err
			}
		case bytecode.OpLoadLocal:
			idx := fr.base + int(instr.Operand)
			if idx < 0 || idx >= len(vm.stack) {
				return nil, vmErr(BadOpcode, span, "local slot %d out of range", instr.Operand)
			}
			if err := vm.push(vm.stack[idx]); err != nil {
				return nil, err
			}
		case bytecode.OpStoreLocal:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			idx := fr.base + int(instr.Operand)
			for idx >= len(vm.stack) {
				vm.stack = append(vm.stack, value.Unit{})
			}
			vm.stack[idx] = v
			if err := vm.push(v); err != nil {
				return nil, err
			}
		case bytecode.OpLoadGlobal:
			name := fr.chunk.Names[instr.Operand]
			v, ok := vm.globals[name]
			if !ok {
				return nil, vmErr(Trapped, span, "undefined global %q", name)
			}
			if err := vm.push(v); err != nil {
				return nil, err
			}
		case bytecode.OpStoreGlobal:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			vm.globals[fr.chunk.Names[instr.Operand]] = v
			if err := vm.push(v); err != nil {
				return nil, err
			}
		case bytecode.OpPop:
			if _, err := vm.pop(span); err != nil {
				return nil, err
			}
		case bytecode.OpDup:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			if err := vm.push(v); err != nil {
				return nil, err
			}
			if err := vm.push(v); err != nil {
				return nil, err
			}
		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow,
			bytecode.OpEq, bytecode.OpNe, bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			if err := vm.binOp(instr.Op, span); err != nil {
				return nil, err
			}
		case bytecode.OpNot:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			b, ok := v.(value.Bool)
			if !ok {
				return nil, vmErr(Trapped, span, "! requires a Bool, found %s", v.Type())
			}
			if err := vm.push(value.Bool{V: !b.V}); err != nil {
				return nil, err
			}
		case bytecode.OpNeg:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			switch x := v.(type) {
			case value.Integer:
				if err := vm.push(value.Integer{V: -x.V, Suffix: x.Suffix}); err != nil {
					return nil, err
				}
			case value.Float:
				if err := vm.push(value.Float{V: -x.V}); err != nil {
					return nil, err
				}
			default:
				return nil, vmErr(Trapped, span, "unary - requires a number, found %s", v.Type())
			}
		case bytecode.OpJump:
			fr.ip += int(instr.Operand)
		case bytecode.OpJumpIfFalse:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			if !value.Truthy(v) {
				fr.ip += int(instr.Operand)
			}
		case bytecode.OpJumpIfTrue:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			if value.Truthy(v) {
				fr.ip += int(instr.Operand)
			}
		case bytecode.OpMakeArray:
			n := int(instr.Operand)
			if len(vm.stack) < n {
				return nil, vmErr(StackUnderflow, span, "MakeArray needs %d operands", n)
			}
			elems := append([]value.Value{}, vm.stack[len(vm.stack)-n:]...)
			vm.stack = vm.stack[:len(vm.stack)-n]
			if err := vm.push(value.NewArray(elems)); err != nil {
				return nil, err
			}
		case bytecode.OpMakeTuple:
			n := int(instr.Operand)
			if len(vm.stack) < n {
				return nil, vmErr(StackUnderflow, span, "MakeTuple needs %d operands", n)
			}
			elems := append([]value.Value{}, vm.stack[len(vm.stack)-n:]...)
			vm.stack = vm.stack[:len(vm.stack)-n]
			if err := vm.push(value.Tuple{V: elems}); err != nil {
				return nil, err
			}
		case bytecode.OpIndex:
			idx, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			recv, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			v, err := indexValue(recv, idx, span)
			if err != nil {
				return nil, err
			}
			if err := vm.push(v); err != nil {
				return nil, err
			}
		case bytecode.OpSetIndex:
			idx, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			recv, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			if err := setIndexValue(recv, idx, v, span); err != nil {
				return nil, err
			}
			if err := vm.push(v); err != nil {
				return nil, err
			}
		case bytecode.OpGetField:
			recv, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			name := fr.chunk.Names[instr.Operand]
			v, err := getField(recv, name, span)
			if err != nil {
				return nil, err
			}
			if err := vm.push(v); err != nil {
				return nil, err
			}
		case bytecode.OpSetField:
			recv, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			name := fr.chunk.Names[instr.Operand]
			if err := setField(recv, name, v, span); err != nil {
				return nil, err
			}
			if err := vm.push(v); err != nil {
				return nil, err
			}
		case bytecode.OpMakeClosure:
			child := fr.chunk.Children[instr.Operand]
			n := child.UpvalueCount
			if len(vm.stack) < n {
				return nil, vmErr(StackUnderflow, span, "MakeClosure needs %d upvalues", n)
			}
			ups := append([]value.Value{}, vm.stack[len(vm.stack)-n:]...)
			vm.stack = vm.stack[:len(vm.stack)-n]
			if err := vm.push(value.Closure{Chunk: child, Upvalues: ups}); err != nil {
				return nil, err
			}
		case bytecode.OpCall:
			if err := vm.call(int(instr.Operand), span); err != nil {
				return nil, err
			}
		case bytecode.OpReturn:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			vm.stack = vm.stack[:fr.base]
			vm.frames = vm.frames[:len(vm.frames)-1]
			if err := vm.push(v); err != nil {
				return nil, err
			}
			if len(vm.frames) == targetDepth {
				return v, nil
			}
		case bytecode.OpAnd:
			r, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			l, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			if err := vm.push(value.Bool{V: value.Truthy(l) && value.Truthy(r)}); err != nil {
				return nil, err
			}
		case bytecode.OpOr:
			r, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			l, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			if err := vm.push(value.Bool{V: value.Truthy(l) || value.Truthy(r)}); err != nil {
				return nil, err
			}
		case bytecode.OpMakeMap:
			n := int(instr.Operand)
			if len(vm.stack) < n*2 {
				return nil, vmErr(StackUnderflow, span, "MakeMap needs %d operands", n*2)
			}
			m := map[string]value.Value{}
			for i := 0; i < n; i++ {
				v, err := vm.pop(span)
				if err != nil {
					return nil, err
				}
				k, err := vm.pop(span)
				if err != nil {
					return nil, err
				}
				ks, ok := k.(value.String)
				if !ok {
					return nil, vmErr(Trapped, span, "map key must be a String, found %s", k.Type())
				}
				m[ks.String()] = v
			}
			if err := vm.push(value.Object{V: &m}); err != nil {
				return nil, err
			}
		case bytecode.OpMakeRange:
			hi, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			lo, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			loI, ok1 := lo.(value.Integer)
			hiI, ok2 := hi.(value.Integer)
			if !ok1 || !ok2 {
				return nil, vmErr(Trapped, span, "range bound must be an integer")
			}
			if err := vm.push(value.Range{Start: loI.V, End: hiI.V, Inclusive: instr.Operand != 0}); err != nil {
				return nil, err
			}
		case bytecode.OpCallMethod:
			argc := int(instr.Operand)
			if len(vm.stack) < argc+2 {
				return nil, vmErr(StackUnderflow, span, "CallMethod needs %d operands", argc+2)
			}
			args := append([]value.Value{}, vm.stack[len(vm.stack)-argc:]...)
			vm.stack = vm.stack[:len(vm.stack)-argc]
			nameV, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			name, ok := nameV.(value.String)
			if !ok {
				return nil, vmErr(BadOpcode, span, "method name constant must be a String")
			}
			recv, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			result, err := vm.callMethod(recv, name.String(), args, span)
			if err != nil {
				return nil, err
			}
			if err := vm.push(result); err != nil {
				return nil, err
			}
		case bytecode.OpTrap:
			v, err := vm.pop(span)
			if err != nil {
				return nil, err
			}
			return nil, vmErr(Trapped, span, "pattern did not match value %s", value.Repr(v))
		default:
			return nil, vmErr(BadOpcode, span, "unimplemented opcode %s", instr.Op)
		}
	}
	if len(vm.stack) == 0 {
		return value.Unit{}, nil
	}
	return vm.stack[len(vm.stack)-1], nil
}

func (vm *VM) call(argc int, span token.Span) error {
	if len(vm.stack) < argc+1 {
		return vmErr(StackUnderflow, span, "call needs %d operands", argc+1)
	}
	callee := vm.stack[len(vm.stack)-argc-1]
	closure, ok := callee.(value.Closure)
	if !ok {
		return vmErr(Trapped, span, "%s is not callable", callee.Type())
	}
	base := len(vm.stack) - argc
	for len(vm.stack) < base+closure.Chunk.NumLocals {
		vm.stack = append(vm.stack, value.Unit{})
	}
	for i, up := range closure.Upvalues {
		vm.stack[base+argc+i] = up
	}
	// drop the callee slot below the args/locals region by shifting it out
	copy(vm.stack[base-1:], vm.stack[base:])
	vm.stack = vm.stack[:len(vm.stack)-1]
	vm.frames = append(vm.frames, frame{chunk: closure.Chunk, ip: 0, base: base - 1})
	return nil
}

func (vm *VM) binOp(op bytecode.Op, span token.Span) error {
	r, err := vm.pop(span)
	if err != nil {
		return err
	}
	l, err := vm.pop(span)
	if err != nil {
		return err
	}
	result, err := applyOp(op, l, r, span)
	if err != nil {
		return err
	}
	return vm.push(result)
}
