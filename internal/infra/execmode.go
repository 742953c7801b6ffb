package infra

import (
	"os"
	"os/user"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// ExecMode represents who the daemon runs as.
type ExecMode string

const (
	// ExecModeUser keeps state under the user's home directory.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps state under /var/lib (root).
	ExecModeSystem ExecMode = "system"
)

const systemDataDir = "/var/lib/sitemon"

// ExecModeConfig holds the paths used in a given mode.
type ExecModeConfig struct {
	Mode     ExecMode
	DataDir  string // encrypted store, key, history, daemon registry
	RuleFile string // rule file read by the browser bridge
	LogFile  string
	IsRoot   bool
}

// DetectExecMode determines the execution mode from the effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return configFor(ExecModeSystem, systemDataDir)
	}
	return configFor(ExecModeUser, filepath.Join(GetRealUserHome(), ".sitemon"))
}

// ConfigForDataDir builds a config rooted at an explicit data directory.
func ConfigForDataDir(dataDir string) *ExecModeConfig {
	mode := ExecModeUser
	if os.Geteuid() == 0 {
		mode = ExecModeSystem
	}
	if expanded, err := homedir.Expand(dataDir); err == nil {
		dataDir = expanded
	}
	return configFor(mode, dataDir)
}

func configFor(mode ExecMode, dataDir string) *ExecModeConfig {
	return &ExecModeConfig{
		Mode:     mode,
		DataDir:  dataDir,
		RuleFile: filepath.Join(dataDir, "rules.json"),
		LogFile:  filepath.Join(dataDir, "sitemon.log"),
		IsRoot:   os.Geteuid() == 0,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the invoking user's home, even under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, err := homedir.Dir()
	if err != nil {
		home, _ = os.UserHomeDir()
	}
	return home
}
