package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Re-evaluate focus now",
	Long:  `Checks the calendar and manual timers immediately and updates the blocking rules.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.engine.EvaluateOnce(ctx)
			if err != nil {
				return err
			}
			a.notifyDaemon()
			printSession(s)
			return nil
		})
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn blocking on",
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(true) },
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn blocking off",
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(false) },
}

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Manual focus sessions",
}

var focusStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a manual focus session",
	Long: `Starts a manual focus session. Manual focus overrides calendar focus
until it expires or is stopped. Without --profile the Manual profile is used.`,
	RunE: runFocusStart,
}

var focusStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the manual focus session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.engine.StopManualFocus(ctx)
			if err != nil {
				return err
			}
			a.notifyDaemon()
			printSession(s)
			return nil
		})
	},
}

var exceptionCmd = &cobra.Command{
	Use:   "exception",
	Short: "Temporarily lift blocking",
}

var exceptionGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Lift blocking for a while, charged to today's budget",
	RunE:  runExceptionGrant,
}

var exceptionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the running exception early",
	Long:  `Ends the running exception. Time already granted is not refunded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.engine.EndException(ctx)
			if err != nil {
				return err
			}
			a.notifyDaemon()
			printSession(s)
			return nil
		})
	},
}

var exceptionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the remaining exception budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			printBudget(ctx, a)
			return nil
		})
	},
}

var (
	focusProfile      string
	focusDuration     time.Duration
	exceptionDuration time.Duration
)

func init() {
	focusStartCmd.Flags().StringVarP(&focusProfile, "profile", "p", "", "profile to activate (default Manual)")
	focusStartCmd.Flags().DurationVarP(&focusDuration, "duration", "d", 25*time.Minute, "how long to focus")
	exceptionGrantCmd.Flags().DurationVarP(&exceptionDuration, "duration", "d", 5*time.Minute, "requested exception length")

	focusCmd.AddCommand(focusStartCmd, focusStopCmd)
	exceptionCmd.AddCommand(exceptionGrantCmd, exceptionEndCmd, exceptionStatusCmd)

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(focusCmd)
	rootCmd.AddCommand(exceptionCmd)
}

func setEnabled(enabled bool) error {
	return withApp(func(ctx context.Context, a *app) error {
		s, err := a.engine.SetEnabled(ctx, enabled)
		if err != nil {
			return err
		}
		a.notifyDaemon()
		printSession(s)
		return nil
	})
}

func runFocusStart(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		s, err := a.engine.StartManualFocus(ctx, focusProfile, focusDuration)
		if errors.Is(err, domain.ErrProfileNotFound) {
			return fmt.Errorf("%w (see 'sitemon config show')", err)
		}
		if err != nil {
			return err
		}
		a.notifyDaemon()
		printSession(s)
		return nil
	})
}

func runExceptionGrant(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		granted, s, err := a.engine.GrantException(ctx, exceptionDuration)
		if errors.Is(err, domain.ErrBudgetExhausted) {
			fmt.Println("No exception time left for now.")
			printBudget(ctx, a)
			return nil
		}
		if err != nil {
			return err
		}
		a.notifyDaemon()
		if granted < exceptionDuration {
			fmt.Printf("Granted %s (budget allowed less than the %s requested)\n", granted, exceptionDuration)
		} else {
			fmt.Printf("Granted %s\n", granted)
		}
		printSession(s)
		return nil
	})
}
