package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

const registryFileName = "daemon.json"

// FileRegistry implements domain.DaemonRegistry using a JSON file in the data directory.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates a registry in dataDir.
func NewFileRegistry(dataDir string, pm domain.ProcessManager) *FileRegistry {
	return NewFileRegistryWithPath(filepath.Join(dataDir, registryFileName), pm)
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{path: path, processManager: pm}
}

func (r *FileRegistry) GetRegistryPath() string {
	return r.path
}

// Register records daemon as the running instance.
// It fails when another live daemon is already registered.
func (r *FileRegistry) Register(daemon domain.Daemon) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	// Serialize concurrent starts.
	lockFile, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	if existing, _ := r.GetAll(); existing != nil && existing.PID != daemon.PID && r.processManager.IsRunning(existing.PID) {
		return fmt.Errorf("daemon already running with pid %d", existing.PID)
	}

	started := daemon.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	entry := &domain.RegistryEntry{
		Version:       1,
		PID:           daemon.PID,
		StartedAt:     started.Unix(),
		LastHeartbeat: time.Now().Unix(),
		AppVersion:    daemon.AppVersion,
	}
	return r.atomicWrite(entry)
}

// UpdateHeartbeat updates timestamp for liveness check.
func (r *FileRegistry) UpdateHeartbeat() error {
	entry, err := r.GetAll()
	if err != nil {
		return err
	}
	if entry == nil {
		return domain.ErrNotFound
	}
	entry.LastHeartbeat = time.Now().Unix()
	return r.atomicWrite(entry)
}

// IsAlive checks the registered PID.
func (r *FileRegistry) IsAlive() (bool, error) {
	entry, err := r.GetAll()
	if err != nil {
		return false, err
	}
	if entry == nil || entry.PID == 0 {
		return false, nil
	}
	return r.processManager.IsRunning(entry.PID), nil
}

// GetAll returns registry state, nil when nothing is registered.
func (r *FileRegistry) GetAll() (*domain.RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.RegistryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Clear removes the registry file.
func (r *FileRegistry) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes the entry via temp file and rename.
func (r *FileRegistry) atomicWrite(entry *domain.RegistryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// Temp name is per process so concurrent writers never share it.
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

var _ domain.DaemonRegistry = (*FileRegistry)(nil)
