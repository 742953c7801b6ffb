package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/site_mon/internal/infra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the login agent that starts the daemon (macOS)",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the daemon automatically on login",
	RunE:  runServiceInstall,
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop starting the daemon on login",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := infra.NewLaunchdService(execMode())
		if !svc.IsInstalled() {
			fmt.Println("Login agent is not installed")
			return nil
		}
		if err := svc.Uninstall(); err != nil {
			return fmt.Errorf("failed to uninstall login agent: %w", err)
		}
		fmt.Printf("Removed %s\n", svc.PlistPath())
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd, serviceUninstallCmd)
	rootCmd.AddCommand(serviceCmd)
}

func runServiceInstall(cmd *cobra.Command, args []string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}

	svc := infra.NewLaunchdService(execMode())
	if svc.IsInstalled() && !svc.NeedsUpdate(executable) {
		fmt.Println("Login agent is already installed")
		return nil
	}
	if err := svc.Install(executable); err != nil {
		return fmt.Errorf("failed to install login agent: %w", err)
	}
	fmt.Printf("Installed %s\n", svc.PlistPath())
	return nil
}
