package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	blockedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show focus and daemon status",
	RunE:  runStatus,
}

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Check whether a URL would be blocked right now",
	Long: `Checks a navigation against the rules of the active profile.
With --tab the result is recorded for that tab so it can be restored later.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent focus transitions",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	checkTab     string
	historyLimit int
	jsonOutput   bool
)

func init() {
	checkCmd.Flags().StringVar(&checkTab, "tab", "", "record the result for this tab id")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of transitions to show")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func printSession(s domain.FocusSession) {
	style := idleStyle
	switch s.State {
	case domain.StateManualFocus, domain.StateCalendarFocus:
		style = activeStyle
	case domain.StateExceptionGranted:
		style = warningStyle
	case domain.StateError:
		style = blockedStyle
	}
	fmt.Printf("%s %s\n", labelStyle.Render("Focus:"), style.Render(s.StatusText))
	if s.AuthRequired {
		fmt.Println(warningStyle.Render("Calendar access needs a new token: sitemon auth set-token"))
	}
}

func printBudget(ctx context.Context, a *app) {
	now := time.Now()
	st, err := a.budget.GetState(ctx)
	if err != nil {
		fmt.Printf("Exception budget: unavailable (%v)\n", err)
		return
	}
	available, err := a.budget.Available(ctx, now)
	if err != nil {
		fmt.Printf("Exception budget: unavailable (%v)\n", err)
		return
	}
	limits := a.budget.Limits()
	used := time.Duration(st.DayUsedMs+st.NightUsedMs) * time.Millisecond

	fmt.Printf("%s %s available now\n", labelStyle.Render("Exceptions:"), available.Round(time.Second))
	fmt.Printf("  used today %s of %s", used.Round(time.Second), limits.DailyTotal)
	if limits.InNightWindow(now) {
		night := time.Duration(st.NightUsedMs) * time.Millisecond
		fmt.Printf(", tonight %s of %s", night.Round(time.Second), limits.NightlyLimit)
	}
	fmt.Println()
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		fmt.Println(titleStyle.Render("=== sitemon Status ==="))

		entry, err := a.registry.GetAll()
		if err != nil || entry == nil || !a.pm.IsRunning(entry.PID) {
			fmt.Printf("%s %s\n", labelStyle.Render("Daemon:"), idleStyle.Render("not running (sitemon start)"))
		} else {
			fmt.Printf("%s %s\n", labelStyle.Render("Daemon:"), activeStyle.Render(fmt.Sprintf("running (pid %d)", entry.PID)))
			if entry.LastHeartbeat > 0 {
				lastBeat := time.Unix(entry.LastHeartbeat, 0)
				fmt.Printf("  last heartbeat %s ago\n", time.Since(lastBeat).Round(time.Second))
			}
		}
		fmt.Printf("%s %s (%s)\n", labelStyle.Render("Mode:"), a.mode.Mode, a.mode.DataDir)

		s := a.engine.Session()
		printSession(s)
		if !s.EvaluatedAt.IsZero() {
			fmt.Printf("  evaluated %s\n", s.EvaluatedAt.Format(time.Kitchen))
		}

		printBudget(ctx, a)

		rules, err := a.filter.ActiveRules(ctx)
		if err == nil {
			owned := 0
			for _, r := range rules {
				if domain.InReservedWindow(r.ID) {
					owned++
				}
			}
			fmt.Printf("%s %d installed\n", labelStyle.Render("Rules:"), owned)
		}

		tabs, err := a.state.BlockedTabs(ctx)
		if err == nil && len(tabs) > 0 {
			fmt.Printf("%s %d blocked\n", labelStyle.Render("Tabs:"), len(tabs))
		}
		return nil
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		v, err := a.engine.CheckURL(ctx, args[0])
		if err != nil {
			return err
		}

		if v.Blocked {
			fmt.Printf("%s %s\n", blockedStyle.Render("BLOCKED"), v.Message)
			if v.Domain != "" {
				fmt.Printf("  matched %s (rule %s)\n", v.Domain, v.RuleID)
			} else {
				fmt.Printf("  rule %s blocks every site\n", v.RuleID)
			}
		} else {
			fmt.Printf("%s %s\n", activeStyle.Render("ALLOWED"), v.Reason)
		}

		if checkTab != "" {
			return recordTab(ctx, a, checkTab, args[0], v.Blocked)
		}
		return nil
	})
}

// recordTab keeps the blocked-tab map in step with the latest check of a tab.
func recordTab(ctx context.Context, a *app, tab, rawURL string, blocked bool) error {
	tabs, err := a.state.BlockedTabs(ctx)
	if err != nil {
		return err
	}
	if tabs == nil {
		tabs = map[string]string{}
	}
	if blocked {
		tabs[tab] = rawURL
	} else {
		delete(tabs, tab)
	}
	return a.state.SaveBlockedTabs(ctx, tabs)
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		transitions, err := a.history.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(transitions) == 0 {
			fmt.Println("No transitions recorded yet.")
			return nil
		}
		for _, t := range transitions {
			fmt.Printf("%s  %s -> %s  %s\n",
				idleStyle.Render(t.At.Format("2006-01-02 15:04")),
				t.FromState, t.ToState, t.StatusText)
		}
		return nil
	})
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("sitemon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
