package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the aide CLI with the given args against an
// isolated home and vault, returning combined output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	flags := &rootFlags{}
	cmd := newRootCmd(flags, BuildInfo{Version: "test"})

	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// isolate points HOME and the vault at temp directories so commands
// never touch the real filesystem.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	vaultPath := filepath.Join(home, "vault")
	t.Setenv("HOME", home)
	t.Setenv("AIDE_VAULT_PATH", vaultPath)
	return vaultPath
}

// TestRootCommand tests the bare root invocation.
func TestRootCommand(t *testing.T) {
	isolate(t)

	t.Run("prints help without arguments", func(t *testing.T) {
		out, err := executeCommand(t)
		require.NoError(t, err)
		assert.Contains(t, out, "human-in-the-loop")
		assert.Contains(t, out, "approve")
		assert.Contains(t, out, "reject")
		assert.Contains(t, out, "status")
	})

	t.Run("prints version", func(t *testing.T) {
		out, err := executeCommand(t, "--version")
		require.NoError(t, err)
		assert.Contains(t, out, "test (commit: none, built: unknown)")
	})
}

// TestCheckCommand tests configuration validation and vault setup.
func TestCheckCommand(t *testing.T) {
	vaultPath := isolate(t)

	out, err := executeCommand(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK")
	assert.Contains(t, out, vaultPath)

	// The vault tree exists afterwards.
	for _, dir := range []string{"Inbox", "Needs_Action", "Pending_Approval", "Approved", "Done"} {
		info, statErr := os.Stat(filepath.Join(vaultPath, dir))
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}
}

// TestApproveCommand tests the approval path and its failure mode.
func TestApproveCommand(t *testing.T) {
	vaultPath := isolate(t)

	t.Run("fails for a missing task", func(t *testing.T) {
		_, err := executeCommand(t, "approve", "20260115_090000_nope.md")
		require.Error(t, err)
	})

	t.Run("moves a pending task into Approved", func(t *testing.T) {
		_, err := executeCommand(t, "check")
		require.NoError(t, err)

		name := "20260115_090000_pay_invoice.md"
		pending := filepath.Join(vaultPath, "Pending_Approval", name)
		require.NoError(t, os.WriteFile(pending, []byte("Pay the invoice."), 0o600))

		out, err := executeCommand(t, "approve", name)
		require.NoError(t, err)
		assert.Contains(t, out, "Approved "+name)

		assert.NoFileExists(t, pending)
		assert.FileExists(t, filepath.Join(vaultPath, "Approved", name))
	})
}

// TestRejectCommand tests rejection with a reason.
func TestRejectCommand(t *testing.T) {
	vaultPath := isolate(t)
	_, err := executeCommand(t, "check")
	require.NoError(t, err)

	name := "20260115_090000_wire_funds.md"
	pending := filepath.Join(vaultPath, "Pending_Approval", name)
	require.NoError(t, os.WriteFile(pending, []byte("Wire $900."), 0o600))

	out, err := executeCommand(t, "reject", name, "--reason", "wrong account")
	require.NoError(t, err)
	assert.Contains(t, out, "Rejected "+name)
	assert.NoFileExists(t, pending)

	// Archived into Done with the REJECTED marker and the reason.
	entries, err := os.ReadDir(filepath.Join(vaultPath, "Done"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "_REJECTED_")

	data, err := os.ReadFile(filepath.Join(vaultPath, "Done", entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "wrong account")
}

// TestStatusCommand tests the JSON snapshot.
func TestStatusCommand(t *testing.T) {
	vaultPath := isolate(t)

	out, err := executeCommand(t, "status")
	require.NoError(t, err)

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, vaultPath, status["vault_path"])
	assert.Equal(t, false, status["is_running"])
}

// TestBriefCommand tests on-demand briefing generation.
func TestBriefCommand(t *testing.T) {
	vaultPath := isolate(t)

	out, err := executeCommand(t, "brief")
	require.NoError(t, err)
	assert.Contains(t, out, "Briefing written:")

	entries, err := os.ReadDir(filepath.Join(vaultPath, "Briefings"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "_Weekly_Briefing.md")
}

// TestRunOnce tests the single-pass mode.
func TestRunOnce(t *testing.T) {
	vaultPath := isolate(t)
	_, err := executeCommand(t, "check")
	require.NoError(t, err)

	name := "20260115_090000_update_notes.md"
	require.NoError(t, os.WriteFile(
		filepath.Join(vaultPath, "Needs_Action", name),
		[]byte("Tidy up the meeting notes."), 0o600))

	out, err := executeCommand(t, "run", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 1 task(s)")
}
