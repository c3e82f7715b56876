package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDManager(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "run", "inboxhub.pid")
	manager := NewPIDManager(pidFile)
	assert.Equal(t, pidFile, manager.GetPIDFile())

	require.NoError(t, manager.WritePID())
	pid, err := manager.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, manager.RemovePID())
	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err))

	err = manager.RemovePID()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPIDManager_ForeignAndInvalid(t *testing.T) {
	dir := t.TempDir()

	foreign := filepath.Join(dir, "foreign.pid")
	require.NoError(t, os.WriteFile(foreign, []byte("1\n"), 0644))
	assert.ErrorIs(t, NewPIDManager(foreign).RemovePID(), ErrForeignPID)
	_, err := os.Stat(foreign)
	assert.NoError(t, err)

	garbage := filepath.Join(dir, "garbage.pid")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-pid"), 0644))
	_, err = NewPIDManager(garbage).ReadPID()
	assert.Error(t, err)
}
