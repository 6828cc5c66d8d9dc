package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mcg", cmd.Use)
	assert.Contains(t, cmd.Long, "provenance")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	paths := [][]string{
		{"put"}, {"get"}, {"link"}, {"ingest"}, {"ledger"}, {"serve"},
		{"run", "register"}, {"run", "status"}, {"run", "get"}, {"run", "list"},
		{"lineage", "ancestors"}, {"lineage", "descendants"}, {"lineage", "chain"},
		{"snapshot", "export"}, {"snapshot", "import"}, {"snapshot", "verify"},
	}

	for _, path := range paths {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)
}

func TestRunRegisterFlags(t *testing.T) {
	cmd := NewRootCommand()
	reg, _, err := cmd.Find([]string{"run", "register"})
	require.NoError(t, err)

	kind := reg.Flags().Lookup("kind")
	require.NotNil(t, kind)
	status := reg.Flags().Lookup("status")
	require.NotNil(t, status)
	assert.Equal(t, "queued", status.DefValue)
}

func TestLedgerFlags(t *testing.T) {
	cmd := NewRootCommand()
	ledger, _, err := cmd.Find([]string{"ledger"})
	require.NoError(t, err)

	for _, name := range []string{"asset", "run", "relation", "since", "limit"} {
		assert.NotNil(t, ledger.Flags().Lookup(name), name)
	}
	assert.Equal(t, "0", ledger.Flags().Lookup("limit").DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), []string{"--format", "invalid", "run", "list"}, &out, &errOut)

	assert.Equal(t, ExitCommandError, code)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "invalid format")
	assert.Contains(t, errOut.String(), CodeCommand)
}

func TestArgumentErrorsAreCommandErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), []string{"put", "System"}, &out, &errOut)

	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut.String(), "requires at least 2 arg(s)")
}
