package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, exitUsage, run(nil, &out))
	for _, name := range commandOrder {
		assert.Contains(t, out.String(), commands[name].usage)
	}

	out.Reset()
	assert.Equal(t, exitUsage, run([]string{"sideways"}, &out))
	assert.Contains(t, out.String(), `unknown command "sideways"`)
}

func TestRun_MissingArgumentsStopBeforeConnecting(t *testing.T) {
	for _, args := range [][]string{{"step"}, {"goto"}, {"force"}, {"create"}} {
		var out bytes.Buffer
		assert.Equal(t, exitUsage, run(args, &out), "%v", args)
		assert.Contains(t, out.String(), "usage: migrate "+args[0])
	}
}

func TestRun_CreateListValidate(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	require.Equal(t, exitOK, run([]string{"-path", dir, "create", "Add Refunds", "refund", "ledger"}, &out))
	require.Equal(t, exitOK, run([]string{"-path", dir, "create", "refund-index"}, &out))

	up, err := os.ReadFile(filepath.Join(dir, "000001_add_refunds.up.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Description: refund ledger")
	assert.FileExists(t, filepath.Join(dir, "000002_refund_index.down.sql"))

	out.Reset()
	require.Equal(t, exitOK, run([]string{"-path", dir, "list"}, &out))
	assert.Equal(t, "000001_add_refunds\n000002_refund_index\n", out.String())

	out.Reset()
	require.Equal(t, exitOK, run([]string{"-path", dir, "validate"}, &out))
	assert.Contains(t, out.String(), "migrations are valid")

	require.NoError(t, os.Remove(filepath.Join(dir, "000002_refund_index.down.sql")))
	assert.Equal(t, exitFail, run([]string{"-path", dir, "validate"}, &out))
}

func TestRun_RepositoryMigrationsAreValid(t *testing.T) {
	var out bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-path", "../../migrations", "list"}, &out))
	assert.Contains(t, out.String(), "000003_challenge_send_times\n")
	assert.Equal(t, exitOK, run([]string{"-path", "../../migrations", "validate"}, &out))
}

func TestHasFlag(t *testing.T) {
	assert.True(t, hasFlag([]string{"-confirm"}, "confirm"))
	assert.True(t, hasFlag([]string{"x", "--confirm"}, "confirm"))
	assert.False(t, hasFlag([]string{"confirm"}, "confirm"))
	assert.False(t, hasFlag(nil, "confirm"))
}
