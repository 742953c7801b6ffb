package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

// LaunchdLabel identifies the sitemon login agent.
const LaunchdLabel = "com.focusd.sitemon"

// Runs `sitemon daemon` at login and restarts it after a crash.
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>daemon</string>
        <string>--data-dir</string>
        <string>{{.DataDir}}</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.LogPath}}</string>

    <key>ProcessType</key>
    <string>Background</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>`

type plistConfig struct {
	Label          string
	ExecutablePath string
	DataDir        string
	LogPath        string
}

// LaunchdService installs sitemon as a launchd login agent (macOS).
type LaunchdService struct {
	plistPath string
	dataDir   string
	logPath   string
	// launchctl runs launchctl; replaced in tests.
	launchctl func(args ...string) error
}

// NewLaunchdService creates a service manager writing to ~/Library/LaunchAgents.
func NewLaunchdService(config *ExecModeConfig) *LaunchdService {
	dir := filepath.Join(GetRealUserHome(), "Library", "LaunchAgents")
	return NewLaunchdServiceWithDir(dir, config)
}

// NewLaunchdServiceWithDir creates a service manager with an explicit plist directory.
func NewLaunchdServiceWithDir(plistDir string, config *ExecModeConfig) *LaunchdService {
	return &LaunchdService{
		plistPath: filepath.Join(plistDir, LaunchdLabel+".plist"),
		dataDir:   config.DataDir,
		logPath:   filepath.Join(config.DataDir, "daemon.out"),
		launchctl: func(args ...string) error {
			return exec.Command("launchctl", args...).Run()
		},
	}
}

func (s *LaunchdService) generatePlistContent(execPath string) ([]byte, error) {
	tmpl, err := template.New("plist").Parse(launchAgentTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plist template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, plistConfig{
		Label:          LaunchdLabel,
		ExecutablePath: execPath,
		DataDir:        s.dataDir,
		LogPath:        s.logPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute plist template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the plist and loads it. An existing agent is reloaded.
func (s *LaunchdService) Install(execPath string) error {
	if err := os.MkdirAll(filepath.Dir(s.plistPath), 0755); err != nil {
		return err
	}
	content, err := s.generatePlistContent(execPath)
	if err != nil {
		return err
	}

	if s.IsInstalled() {
		_ = s.launchctl("unload", s.plistPath)
	}
	if err := os.WriteFile(s.plistPath, content, 0644); err != nil {
		return err
	}
	return s.launchctl("load", s.plistPath)
}

// Uninstall unloads and removes the plist.
func (s *LaunchdService) Uninstall() error {
	_ = s.launchctl("unload", s.plistPath)
	if err := os.Remove(s.plistPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsInstalled checks if the plist exists.
func (s *LaunchdService) IsInstalled() bool {
	_, err := os.Stat(s.plistPath)
	return err == nil
}

// NeedsUpdate reports whether the installed plist differs from what Install would write.
func (s *LaunchdService) NeedsUpdate(execPath string) bool {
	if !s.IsInstalled() {
		return false
	}
	current, err := os.ReadFile(s.plistPath)
	if err != nil {
		return true
	}
	expected, err := s.generatePlistContent(execPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

func (s *LaunchdService) PlistPath() string {
	return s.plistPath
}
