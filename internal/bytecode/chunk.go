package bytecode

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/paiml/ruchy/internal/token"
)

// ConstKind enumerates the literal forms a Chunk's constant pool can hold.
// Constants are cbor-serializable on their own terms rather than embedding
// value.Value directly, since Value's shared-handle variants (Array,
// Object, ...) carry unexported pointer fields that cbor cannot round-trip;
// the VM materializes a real value.Value from a Const at LoadConst time.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstString
	ConstBool
	ConstChar
	ConstUnit
)

type Const struct {
	Kind   ConstKind `cbor:"kind"`
	Int    int64     `cbor:"int,omitempty"`
	Float  float64   `cbor:"float,omitempty"`
	Str    string    `cbor:"str,omitempty"`
	Bool   bool      `cbor:"bool,omitempty"`
	Char   rune      `cbor:"char,omitempty"`
	Suffix string    `cbor:"suffix,omitempty"`
}

// Chunk is the compiled unit of spec.md §4.5: `{ code, constants, lines }`
// plus the bookkeeping a real implementation needs (interned names for
// globals/fields/methods, nested chunks for closures). match expressions
// lower to ordinary jumps over a per-arm pattern test compiled from the
// existing opcode set (see compiler_pattern.go) rather than a dedicated
// jump-table format: a [][]int32 table can express an integer switch but
// not the tuple/struct/or/guard shapes spec.md §4.3's patterns need, so
// carrying one here would have stayed permanently unused.
type Chunk struct {
	ID           uuid.UUID    `cbor:"id"`
	Code         []Instr      `cbor:"code"`
	Constants    []Const      `cbor:"constants"`
	Names        []string     `cbor:"names"`
	Lines        []token.Span `cbor:"lines"`
	NumLocals    int          `cbor:"num_locals"`
	Params       []string     `cbor:"params"`
	UpvalueCount int          `cbor:"upvalue_count,omitempty"`
	Children     []*Chunk     `cbor:"children,omitempty"` // closures created via MakeClosure
}

// NewChunk allocates an empty chunk with a fresh identity, used both for a
// top-level compilation unit and for each nested function literal.
func NewChunk() *Chunk {
	return &Chunk{ID: uuid.New()}
}

func (c *Chunk) emit(op Op, operand int32, span token.Span) int {
	c.Code = append(c.Code, Instr{Op: op, Operand: operand})
	c.Lines = append(c.Lines, span)
	return len(c.Code) - 1
}

func (c *Chunk) patchJump(at int, target int) {
	c.Code[at].Operand = int32(target - at - 1)
}

func (c *Chunk) addConst(v Const) int32 {
	for i, existing := range c.Constants {
		if existing == v {
			return int32(i)
		}
	}
	c.Constants = append(c.Constants, v)
	return int32(len(c.Constants) - 1)
}

func (c *Chunk) addName(name string) int32 {
	for i, n := range c.Names {
		if n == name {
			return int32(i)
		}
	}
	c.Names = append(c.Names, name)
	return int32(len(c.Names) - 1)
}

// Encode serializes a Chunk to cbor, grounded on the teacher's canonical
// on-disk form for cached compilation artifacts.
func (c *Chunk) Encode() ([]byte, error) {
	return cbor.Marshal(c)
}

// DecodeChunk reverses Encode, e.g. when loading a `.ruchyc` cache entry.
func DecodeChunk(data []byte) (*Chunk, error) {
	var c Chunk
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
