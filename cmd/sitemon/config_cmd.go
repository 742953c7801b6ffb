package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/infra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage profiles and blocking rules",
}

var configImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace profiles and rules with a YAML document",
	Long: `Validates and stores a YAML document of profiles and rules.
Rules without an id keep the id of an identical rule already stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigImport,
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write profiles and rules as YAML",
	RunE:  runConfigExport,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarize profiles and rules",
	RunE:  runConfigShow,
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the calendar access token",
}

var authSetTokenCmd = &cobra.Command{
	Use:   "set-token [token]",
	Short: "Store a calendar access token (reads stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthSetToken,
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the calendar access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.state.ClearToken(ctx); err != nil {
				return err
			}
			fmt.Println("Calendar token cleared")
			return nil
		})
	},
}

var exportPath string

func init() {
	configExportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "write to file instead of stdout")

	configCmd.AddCommand(configImportCmd, configExportCmd, configShowCmd)
	authCmd.AddCommand(authSetTokenCmd, authClearCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(authCmd)
}

// importRules validates the document at path and stores it.
func importRules(ctx context.Context, configs domain.ConfigStore, path string) (*domain.Configuration, error) {
	previous, err := configs.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := infra.LoadConfigFile(path, previous)
	if err != nil {
		return nil, err
	}
	if err := configs.SaveConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runConfigImport(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		cfg, err := importRules(ctx, a.state, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d profiles and %d rules\n", len(cfg.Profiles), len(cfg.Rules))

		s, err := a.engine.EvaluateOnce(ctx)
		if err != nil {
			return err
		}
		a.notifyDaemon()
		printSession(s)
		return nil
	})
}

func runConfigExport(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		cfg, err := a.state.LoadConfig(ctx)
		if err != nil {
			return err
		}
		data, err := infra.MarshalConfig(cfg)
		if err != nil {
			return err
		}
		if exportPath == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(exportPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportPath, err)
		}
		fmt.Printf("Exported to %s\n", exportPath)
		return nil
	})
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		cfg, err := a.state.LoadConfig(ctx)
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render("Profiles"))
		for _, p := range cfg.Profiles {
			trigger := "manual only"
			if p.HasTrigger() {
				trigger = fmt.Sprintf("calendar keyword %q", p.Keyword)
			}
			fmt.Printf("  %s  %s\n", labelStyle.Render(p.Name), trigger)
		}

		fmt.Println(titleStyle.Render("Rules"))
		if len(cfg.Rules) == 0 {
			fmt.Println("  (none)")
		}
		for _, r := range cfg.Rules {
			target := r.DomainSpec
			if r.Kind == domain.RuleKindBlockAll {
				target = "every site"
			}
			fmt.Printf("  [%s] %s -> %s\n", r.ID, target, strings.Join(r.Profiles, ", "))
			for _, v := range r.AllowedVideos {
				fmt.Printf("      allowed video %s (%s)\n", v.ID, v.Name)
			}
		}
		return nil
	})
}

func runAuthSetToken(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read token from stdin: %w", err)
		}
		token = line
	}

	return withApp(func(ctx context.Context, a *app) error {
		if err := a.state.SetToken(ctx, token); err != nil {
			return err
		}
		fmt.Println("Calendar token stored")

		s, err := a.engine.EvaluateOnce(ctx)
		if err != nil {
			return err
		}
		a.notifyDaemon()
		printSession(s)
		return nil
	})
}
