package parser

// TelemetryLevel controls production-safe parse counters, grounded on the
// teacher's two-axis ParserConfig (runtime/parser/options.go).
type TelemetryLevel int

const (
	TelemetryOff TelemetryLevel = iota
	TelemetryBasic
	TelemetryTiming
)

// DebugLevel controls development-only tracing.
type DebugLevel int

const (
	DebugOff DebugLevel = iota
	DebugPaths
	DebugDetailed
)

// Telemetry holds parse counters collected when enabled.
type Telemetry struct {
	TokenCount int
	ErrorCount int
}

type config struct {
	telemetry      TelemetryLevel
	debug          DebugLevel
	validateDfSchema bool
}

// Option configures a Parser.
type Option func(*config)

// WithTelemetry enables production-safe counters.
func WithTelemetry(level TelemetryLevel) Option {
	return func(c *config) { c.telemetry = level }
}

// WithDebug enables development tracing.
func WithDebug(level DebugLevel) Option {
	return func(c *config) { c.debug = level }
}

// WithDataFrameSchemaValidation turns on JSON-Schema validation of `df!`
// macro column definitions (spec.md §4.7 item 12).
func WithDataFrameSchemaValidation(enabled bool) Option {
	return func(c *config) { c.validateDfSchema = enabled }
}
