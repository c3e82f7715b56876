package helper

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that move the default lookup locations
const (
	EnvConfigDir = "INBOXHUB_CONFIG_DIR"
	EnvRunDir    = "INBOXHUB_RUN_DIR"
)

const (
	systemConfigDir = "/etc/inboxhub"
	systemRunDir    = "/var/run"

	// DefaultPIDFile is used when no pid file name is configured
	DefaultPIDFile = "inboxhub.pid"
)

var ErrEmptyFilename = errors.New("config filename cannot be empty")

// ConfigCandidates lists where a relative config file name is looked up:
// $INBOXHUB_CONFIG_DIR, the working directory, ./configs, /etc/inboxhub.
func ConfigCandidates(filename string) []string {
	var dirs []string
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		dirs = append(dirs, dir)
	}
	if wd, err := os.Getwd(); err == nil && wd != "" {
		dirs = append(dirs, wd, filepath.Join(wd, "configs"))
	}
	dirs = append(dirs, systemConfigDir)

	out := make([]string, len(dirs))
	for i, dir := range dirs {
		out[i] = filepath.Join(dir, filename)
	}
	return out
}

// GetCfgPath resolves filename to the first existing candidate. Absolute
// names are returned as is. When no candidate exists the system location is
// returned, so the read error names it.
func GetCfgPath(filename string) (string, error) {
	if filename == "" {
		return "", ErrEmptyFilename
	}
	if filepath.IsAbs(filename) {
		return filename, nil
	}

	candidates := ConfigCandidates(filename)
	for _, p := range candidates {
		if isFile(p) {
			return absOr(p), nil
		}
	}
	return candidates[len(candidates)-1], nil
}

// GetPIDPath resolves where the hub writes its PID file. An empty name means
// DefaultPIDFile. Absolute names are used as is, and a name with a directory
// part resolves against the working directory when that directory exists.
// Anything else lands in RunDir.
func GetPIDPath(filename string) string {
	if filename == "" {
		filename = DefaultPIDFile
	}
	if filepath.IsAbs(filename) {
		return filename
	}

	if strings.ContainsRune(filename, filepath.Separator) {
		p := absOr(filename)
		if isDir(filepath.Dir(p)) {
			return p
		}
	}
	return filepath.Join(RunDir(), filepath.Base(filename))
}

// RunDir is $INBOXHUB_RUN_DIR, then $XDG_RUNTIME_DIR, then /var/run
func RunDir() string {
	for _, env := range []string{EnvRunDir, "XDG_RUNTIME_DIR"} {
		if dir := os.Getenv(env); dir != "" && isDir(dir) {
			return dir
		}
	}
	return systemRunDir
}

func absOr(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
