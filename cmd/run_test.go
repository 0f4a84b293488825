// File: cmd/run_test.go
package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfn/chauffeur/internal/config"
	"github.com/hexfn/chauffeur/internal/devtools"
)

func TestSplitHeaderAssignment(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		wantName  string
		wantValue string
		wantErr   bool
	}{
		{name: "simple", input: "User-Agent=custom", wantName: "User-Agent", wantValue: "custom"},
		{name: "value with equals", input: "Cookie=a=b", wantName: "Cookie", wantValue: "a=b"},
		{name: "empty value", input: "X-Flag=", wantName: "X-Flag", wantValue: ""},
		{name: "missing equals", input: "User-Agent", wantErr: true},
		{name: "empty name", input: "=value", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, value, err := splitHeaderAssignment(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, name)
			assert.Equal(t, tc.wantValue, value)
		})
	}
}

func TestMergeHeaderRules(t *testing.T) {
	cfg := config.DevToolsConfig{
		Enabled: true,
		HeaderRules: map[string]config.HeaderRuleConfig{
			"User-Agent": {Value: "from-config", Instruction: "set"},
			"X-Keep":     {Value: "kept", Instruction: "set_exist"},
		},
	}

	rules, err := mergeHeaderRules(cfg,
		[]string{"User-Agent=from-cli", "X-New=fresh"},
		[]string{"Referer=https://example.com/"},
		[]string{"Cookie"},
	)
	require.NoError(t, err)

	assert.Equal(t, devtools.HeaderRule{Value: "from-cli", Instruction: devtools.InstructionSet}, rules["User-Agent"])
	assert.Equal(t, devtools.HeaderRule{Value: "fresh", Instruction: devtools.InstructionSet}, rules["X-New"])
	assert.Equal(t, devtools.HeaderRule{Value: "https://example.com/", Instruction: devtools.InstructionSetExist}, rules["Referer"])
	assert.Equal(t, devtools.HeaderRule{Instruction: devtools.InstructionRemove}, rules["Cookie"])
	// Config rules without a CLI override survive.
	assert.Equal(t, devtools.HeaderRule{Value: "kept", Instruction: devtools.InstructionSetExist}, rules["X-Keep"])
}

func TestMergeHeaderRulesIgnoresConfigWhenDisabled(t *testing.T) {
	cfg := config.DevToolsConfig{
		Enabled: false,
		HeaderRules: map[string]config.HeaderRuleConfig{
			"X-From-Config": {Value: "ignored", Instruction: "set"},
		},
	}

	rules, err := mergeHeaderRules(cfg, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rules, "rules from a disabled devtools section must not trigger interception")

	// CLI flags still apply with the section disabled.
	rules, err = mergeHeaderRules(cfg, []string{"X-Cli=yes"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]devtools.HeaderRule{
		"X-Cli": {Value: "yes", Instruction: devtools.InstructionSet},
	}, rules)
}

func TestMergeHeaderRulesCanonicalizesNames(t *testing.T) {
	cfg := config.DevToolsConfig{
		Enabled: true,
		HeaderRules: map[string]config.HeaderRuleConfig{
			// Viper lowercases map keys when unmarshaling.
			"user-agent": {Value: "from-config", Instruction: "set"},
		},
	}

	rules, err := mergeHeaderRules(cfg, []string{"USER-AGENT=from-cli"}, nil, []string{"x-trace-id"})
	require.NoError(t, err)

	require.Len(t, rules, 2)
	assert.Equal(t, devtools.HeaderRule{Value: "from-cli", Instruction: devtools.InstructionSet}, rules["User-Agent"])
	assert.Equal(t, devtools.HeaderRule{Instruction: devtools.InstructionRemove}, rules["X-Trace-Id"])
}

func TestMergeHeaderRulesRejectsBadInput(t *testing.T) {
	_, err := mergeHeaderRules(config.DevToolsConfig{}, []string{"no-equals"}, nil, nil)
	assert.Error(t, err)

	_, err = mergeHeaderRules(config.DevToolsConfig{}, nil, nil, []string{"  "})
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, Version+"\n", out.String())
}
