package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrForeignPID is returned by RemovePID when the file belongs to another process
var ErrForeignPID = errors.New("pid file belongs to another process")

// PIDManager writes and removes the PID file of a running server
type PIDManager struct {
	pidFile string
}

// NewPIDManager creates a PIDManager for pidFile
func NewPIDManager(pidFile string) *PIDManager {
	return &PIDManager{pidFile: pidFile}
}

// WritePID writes the current process ID, creating parent directories
func (p *PIDManager) WritePID() error {
	if err := os.MkdirAll(filepath.Dir(p.pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	return os.WriteFile(p.pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

// ReadPID returns the process ID stored in the file
func (p *PIDManager) ReadPID() (int, error) {
	data, err := os.ReadFile(p.pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", p.pidFile, err)
	}
	return pid, nil
}

// RemovePID removes the file if it still holds the current process ID
func (p *PIDManager) RemovePID() error {
	pid, err := p.ReadPID()
	if err != nil {
		return err
	}
	if pid != os.Getpid() {
		return ErrForeignPID
	}
	return os.Remove(p.pidFile)
}

// GetPIDFile returns the PID file path
func (p *PIDManager) GetPIDFile() string {
	return p.pidFile
}
