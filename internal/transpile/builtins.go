package transpile

import (
	"fmt"
	"strings"
)

// methodRenames implements spec.md §4.7 item 10's fixed remapping table.
// Names absent from this table pass through unchanged.
var methodRenames = map[string]string{
	"to_upper":  "to_uppercase",
	"to_lower":  "to_lowercase",
	"length":    "len",
	"push_back": "push",
	"pop_back":  "pop",
}

func renameMethod(name string) string {
	if r, ok := methodRenames[name]; ok {
		return r
	}
	return name
}

// trigAndLogFns implements spec.md §4.7 item 11's float-cast-receiver
// lowering for the transcendental builtins.
var trigAndLogFns = map[string]string{
	"sin":   "sin",
	"cos":   "cos",
	"tan":   "tan",
	"log":   "ln",
	"log10": "log10",
}

// lowerBuiltinCall implements spec.md §4.7 item 11: sin/cos/tan/log/log10
// become method calls on a float-cast receiver; random() expands to a
// deterministic LCG seeded from wall-clock nanoseconds; time_micros()
// expands to a wall-clock (SystemTime) read in microseconds since the Unix
// epoch, which is not a monotonic clock; compute_hash(path)
// expands to a streaming MD5 read of the named file. Returns ("", false)
// when name isn't one of these builtins, leaving the call to lower
// generically.
func lowerBuiltinCall(name string, argTexts []string) (string, bool) {
	if target, ok := trigAndLogFns[name]; ok && len(argTexts) == 1 {
		return fmt.Sprintf("((%s) as f64).%s()", argTexts[0], target), true
	}
	switch name {
	case "random":
		return "{ " +
			"let seed = std::time::SystemTime::now().duration_since(std::time::UNIX_EPOCH).unwrap().as_nanos() as u64; " +
			"let next = seed.wrapping_mul(6364136223846793005).wrapping_add(1442695040888963407); " +
			"(next >> 11) as f64 / (1u64 << 53) as f64 " +
			"}", true
	case "time_micros":
		return "std::time::SystemTime::now().duration_since(std::time::UNIX_EPOCH).unwrap().as_micros() as i64", true
	case "compute_hash":
		if len(argTexts) != 1 {
			return "", false
		}
		return computeHashExpr(argTexts[0]), true
	}
	return "", false
}

// computeHashExpr emits a streaming MD5 digest of the file at pathExpr:
// opened and read in fixed-size chunks rather than loaded whole, matching
// spec.md's "streaming MD5" requirement.
func computeHashExpr(pathExpr string) string {
	var b strings.Builder
	b.WriteString("{ ")
	b.WriteString("let mut file = std::fs::File::open(" + pathExpr + ").expect(\"open for hashing\"); ")
	b.WriteString("let mut ctx = md5::Context::new(); ")
	b.WriteString("let mut buf = [0u8; 8192]; ")
	b.WriteString("loop { use std::io::Read; let n = file.read(&mut buf).expect(\"read for hashing\"); ")
	b.WriteString("if n == 0 { break; } ctx.consume(&buf[..n]); } ")
	b.WriteString("format!(\"{:x}\", ctx.compute()) ")
	b.WriteString("}")
	return b.String()
}
