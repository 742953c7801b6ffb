package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// StartDaemon spawns `sitemon daemon` detached from the terminal.
func StartDaemon(args ...string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	return StartDaemonWithPath(executable, args...)
}

// StartDaemonWithPath spawns the daemon from a specific binary.
func StartDaemonWithPath(binaryPath string, args ...string) error {
	cmd := exec.Command(binaryPath, append([]string{"daemon"}, args...)...)

	// New session: survives the parent shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// SignalDaemon asks the running daemon to re-evaluate.
// It reports false when no live daemon is registered.
func SignalDaemon(registry domain.DaemonRegistry, pm domain.ProcessManager) (bool, error) {
	return sendToDaemon(registry, pm, ReevaluateSignal)
}

// StopDaemon asks the running daemon to shut down.
func StopDaemon(registry domain.DaemonRegistry, pm domain.ProcessManager) (bool, error) {
	return sendToDaemon(registry, pm, syscall.SIGTERM)
}

func sendToDaemon(registry domain.DaemonRegistry, pm domain.ProcessManager, sig os.Signal) (bool, error) {
	entry, err := registry.GetAll()
	if err != nil {
		return false, fmt.Errorf("read registry: %w", err)
	}
	if entry == nil || entry.PID == 0 || !pm.IsRunning(entry.PID) {
		return false, nil
	}
	if err := pm.Signal(entry.PID, sig); err != nil {
		return false, fmt.Errorf("signal daemon %d: %w", entry.PID, err)
	}
	return true, nil
}
