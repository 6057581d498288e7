package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiml/ruchy/internal/bytecode"
	"github.com/paiml/ruchy/internal/eval"
	"github.com/paiml/ruchy/internal/parser"
	"github.com/paiml/ruchy/internal/value"
	"github.com/paiml/ruchy/internal/vm"
)

// S7: the evaluator and the VM must agree on every observable Value for
// the same program (spec.md §8.P-Eval-VM-Equiv).
const whileLoopSource = `fun main() -> i32 {
	let mut i = 0
	while i < 10 {
		i = i + 1
	}
	i
}`

func TestVM_WhileLoopMutation(t *testing.T) {
	prog, errs := parser.Parse(whileLoopSource)
	require.Empty(t, errs)

	chunk, err := bytecode.Compile(prog)
	require.NoError(t, err)
	machine := vm.New()
	_, err = machine.Run(chunk)
	require.NoError(t, err)
	result, err := machine.CallFunction("main")
	require.NoError(t, err)
	assert.Equal(t, value.Integer{V: 10}, result)
}

func TestVM_EvalVMEquivalenceOnWhileLoop(t *testing.T) {
	prog, errs := parser.Parse(whileLoopSource)
	require.Empty(t, errs)

	var out bytes.Buffer
	ev := eval.New(prog, eval.WithStdout(&out))
	evalResult, err := ev.CallMain()
	require.NoError(t, err)

	chunk, err := bytecode.Compile(prog)
	require.NoError(t, err)
	machine := vm.New()
	_, err = machine.Run(chunk)
	require.NoError(t, err)
	vmResult, err := machine.CallFunction("main")
	require.NoError(t, err)

	assert.Equal(t, evalResult, vmResult)
}

func TestVM_ArithmeticAndComparison(t *testing.T) {
	prog, errs := parser.Parse(`fun main() -> bool { (2 + 3 * 4) == 14 }`)
	require.Empty(t, errs)
	chunk, err := bytecode.Compile(prog)
	require.NoError(t, err)
	machine := vm.New()
	_, err = machine.Run(chunk)
	require.NoError(t, err)
	result, err := machine.CallFunction("main")
	require.NoError(t, err)
	assert.Equal(t, value.Bool{V: true}, result)
}

func TestVM_IfElseBranch(t *testing.T) {
	prog, errs := parser.Parse(`fun main() -> i32 { if false { 1 } else { 2 } }`)
	require.Empty(t, errs)
	chunk, err := bytecode.Compile(prog)
	require.NoError(t, err)
	machine := vm.New()
	_, err = machine.Run(chunk)
	require.NoError(t, err)
	result, err := machine.CallFunction("main")
	require.NoError(t, err)
	assert.Equal(t, value.Integer{V: 2}, result)
}

func TestVM_FunctionCallWithArgument(t *testing.T) {
	prog, errs := parser.Parse(`
		fun double(x) { x * 2 }
		fun main() -> i32 { double(21) }
	`)
	require.Empty(t, errs)
	chunk, err := bytecode.Compile(prog)
	require.NoError(t, err)
	machine := vm.New()
	_, err = machine.Run(chunk)
	require.NoError(t, err)
	result, err := machine.CallFunction("main")
	require.NoError(t, err)
	assert.Equal(t, value.Integer{V: 42}, result)
}

func TestVM_CallingUndefinedGlobalIsBadOpcode(t *testing.T) {
	prog, errs := parser.Parse(`let x = 1`)
	require.Empty(t, errs)
	chunk, err := bytecode.Compile(prog)
	require.NoError(t, err)
	machine := vm.New()
	_, err = machine.Run(chunk)
	require.NoError(t, err)
	_, err = machine.CallFunction("main")
	require.Error(t, err)
	var verr *vm.VMError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, vm.BadOpcode, verr.Kind)
}
