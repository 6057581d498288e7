package eval

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/paiml/ruchy/internal/parser"
)

type scenarioFixture struct {
	Scenarios []struct {
		Name   string `yaml:"name"`
		Source string `yaml:"source"`
		Stdout string `yaml:"stdout"`
	} `yaml:"scenarios"`
}

// TestEval_GoldenScenarios drives the evaluator end to end over the seed
// scenarios recorded in testdata/scenarios.yaml, the yaml-fixture-driven
// suite format the spec's §8 "seed test suite" calls for.
func TestEval_GoldenScenarios(t *testing.T) {
	raw, err := os.ReadFile("testdata/scenarios.yaml")
	require.NoError(t, err)
	var fixture scenarioFixture
	require.NoError(t, yaml.Unmarshal(raw, &fixture))
	require.NotEmpty(t, fixture.Scenarios)

	for _, sc := range fixture.Scenarios {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			prog, errs := parser.Parse(sc.Source)
			require.Empty(t, errs, "unexpected parse errors: %v", errs)
			var out bytes.Buffer
			ev := New(prog, WithStdout(&out))
			_, err := ev.CallMain()
			require.NoError(t, err)
			assert.Equal(t, sc.Stdout, out.String())
		})
	}
}
