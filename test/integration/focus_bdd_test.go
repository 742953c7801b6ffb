//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/infra"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

const rulesYAML = `
global_message: Back to work.
profiles:
  - name: Work
    keyword: "[Work]"
  - name: Manual
rules:
  - domains: reddit.com, news.ycombinator.com
    profiles: [Work, Manual]
  - domains: youtube.com
    profiles: [Work]
    allowed_videos:
      - id: dQw4w9WgXcQ
        name: Lecture
`

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// calendarServer serves a Calendar v3 events list with a switchable event.
type calendarServer struct {
	mu       sync.Mutex
	summary  string
	start    time.Time
	end      time.Time
	rejected bool
}

func (s *calendarServer) set(summary string, start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary, s.start, s.end = summary, start, end
}

func (s *calendarServer) reject() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = true
}

func (s *calendarServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejected || r.Header.Get("Authorization") != "Bearer good-token" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid Credentials"}}`))
		return
	}
	if s.summary == "" {
		_, _ = w.Write([]byte(`{"items":[]}`))
		return
	}
	fmt.Fprintf(w, `{"items":[{"id":"e1","summary":%q,"start":{"dateTime":%q},"end":{"dateTime":%q}}]}`,
		s.summary, s.start.Format(time.RFC3339), s.end.Format(time.RFC3339))
}

// installedRules reads the rule file the way the browser bridge does.
func installedRules(path string) map[int]domain.CompiledFilterRule {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[int]domain.CompiledFilterRule{}
	}
	Expect(err).NotTo(HaveOccurred())

	var doc struct {
		Rules []domain.CompiledFilterRule `json:"rules"`
	}
	Expect(json.Unmarshal(data, &doc)).To(Succeed())
	out := map[int]domain.CompiledFilterRule{}
	for _, r := range doc.Rules {
		out[r.ID] = r
	}
	return out
}

var _ = Describe("Focus engine", func() {
	var (
		ctx      context.Context
		tmpDir   string
		ruleFile string
		store    *infra.EncryptedStore
		state    *infra.StateStore
		history  *infra.SQLiteHistory
		filter   *infra.FileFilterEngine
		clock    *stepClock
		calendar *calendarServer
		server   *httptest.Server
		engine   *usecase.FocusEngine
	)

	newEngine := func() *usecase.FocusEngine {
		logger := zap.NewNop()
		budget := usecase.NewExceptionBudgetTracker(state, usecase.DefaultBudgetLimits(), clock, logger)
		cal := infra.NewGoogleCalendar(server.Client(), server.URL, "primary", logger)
		e := usecase.NewFocusEngine(usecase.FocusEngineDeps{
			Configs:  state,
			Sessions: state,
			Budget:   budget,
			Matcher:  usecase.NewCalendarMatcher(state, cal, logger),
			Syncer:   usecase.NewRuleSynchronizer(filter, logger),
			History:  history,
			Clock:    clock,
			Logger:   logger,
		}, usecase.EngineSettings{
			RedirectURL:     "chrome-extension://sitemon/blocked.html",
			FallbackMessage: "Blocked.",
		})
		Expect(e.Load(ctx)).To(Succeed())
		return e
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tmpDir, err = os.MkdirTemp("", "sitemon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		key, err := infra.EnsureKey(infra.NewFileKeyProvider(tmpDir))
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())
		state = infra.NewStateStore(store)

		history, err = infra.NewSQLiteHistory(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		ruleFile = filepath.Join(tmpDir, "rules.json")
		filter = infra.NewFileFilterEngine(ruleFile, infra.DefaultEngineCapacity, zap.NewNop())

		clock = &stepClock{now: time.Date(2024, 3, 11, 10, 0, 0, 0, time.Local)}
		calendar = &calendarServer{}
		server = httptest.NewServer(calendar)

		cfg, err := infra.ParseConfig(strings.NewReader(rulesYAML), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.SaveConfig(ctx, cfg)).To(Succeed())
		Expect(state.SetToken(ctx, "good-token")).To(Succeed())

		engine = newEngine()
	})

	AfterEach(func() {
		server.Close()
		Expect(history.Close()).To(Succeed())
		Expect(store.Close()).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	Describe("calendar focus", func() {
		Context("when a [Work] event is in progress", func() {
			BeforeEach(func() {
				now := clock.Now()
				calendar.set("[Work] sprint planning", now.Add(-time.Hour), now.Add(time.Hour))
			})

			It("should install redirect rules for the Work profile", func() {
				s, err := engine.EvaluateOnce(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(s.State).To(Equal(domain.StateCalendarFocus))
				Expect(s.ActiveProfile).To(Equal("Work"))
				Expect(s.StatusText).To(Equal("Focus: Work (calendar)"))

				rules := installedRules(ruleFile)
				Expect(rules).To(HaveLen(3))
				Expect(rules).To(HaveKey(1000))
				Expect(rules[1000].Condition.URLFilter).To(Equal("||reddit.com^"))
				Expect(rules[1000].Action.RedirectURL).To(HavePrefix("chrome-extension://sitemon/blocked.html?message=Back%20to%20work."))
				Expect(rules[1002].Action.RedirectURL).To(ContainSubstring("allowedVideos="))
			})

			It("should allow only the listed YouTube video", func() {
				_, err := engine.EvaluateOnce(ctx)
				Expect(err).NotTo(HaveOccurred())

				v, err := engine.CheckURL(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Blocked).To(BeFalse())

				v, err = engine.CheckURL(ctx, "https://m.youtube.com/watch?v=other")
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Blocked).To(BeTrue())
				Expect(v.Message).To(Equal("Back to work."))
			})

			It("should leave rules it does not own alone", func() {
				foreign := domain.CompiledFilterRule{
					ID:       5,
					Priority: 1,
					Condition: domain.RuleCondition{
						URLFilter:     "||ads.example^",
						ResourceTypes: []string{"script"},
					},
					Action: domain.RuleAction{Type: "block"},
				}
				Expect(filter.ApplyChanges(ctx, domain.RuleChanges{AddRules: []domain.CompiledFilterRule{foreign}})).To(Succeed())

				_, err := engine.EvaluateOnce(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(installedRules(ruleFile)).To(HaveKey(5))

				Expect(engine.Teardown(ctx)).To(Succeed())
				rules := installedRules(ruleFile)
				Expect(rules).To(HaveLen(1))
				Expect(rules).To(HaveKey(5))
			})

			It("should remove the rules once the event ends", func() {
				_, err := engine.EvaluateOnce(ctx)
				Expect(err).NotTo(HaveOccurred())

				calendar.set("", time.Time{}, time.Time{})
				clock.Advance(2 * time.Hour)

				s, err := engine.EvaluateOnce(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(s.State).To(Equal(domain.StateInactive))
				Expect(installedRules(ruleFile)).To(BeEmpty())

				transitions, err := history.Recent(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(transitions).To(HaveLen(2))
				Expect(transitions[0].ToState).To(Equal(domain.StateInactive))
				Expect(transitions[1].ToProfile).To(Equal("Work"))
			})
		})

		Context("when the calendar rejects the token", func() {
			It("should report that authorization is required and block nothing", func() {
				calendar.reject()

				s, err := engine.EvaluateOnce(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(s.AuthRequired).To(BeTrue())
				Expect(s.StatusText).To(Equal(usecase.StatusAuthRequired))
				Expect(installedRules(ruleFile)).To(BeEmpty())
			})
		})
	})

	Describe("manual focus", func() {
		It("should block until the timer runs out and survive a restart", func() {
			s, err := engine.StartManualFocus(ctx, "", 25*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State).To(Equal(domain.StateManualFocus))
			Expect(installedRules(ruleFile)).To(HaveLen(2))

			// A second engine over the same store sees the running session.
			restarted := newEngine()
			clock.Advance(10 * time.Minute)
			s, err = restarted.EvaluateOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State).To(Equal(domain.StateManualFocus))

			clock.Advance(20 * time.Minute)
			s, err = restarted.EvaluateOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State).To(Equal(domain.StateInactive))
			Expect(installedRules(ruleFile)).To(BeEmpty())
		})

		It("should reject unknown profiles", func() {
			_, err := engine.StartManualFocus(ctx, "Gaming", time.Hour)
			Expect(err).To(MatchError(domain.ErrProfileNotFound))
		})
	})

	Describe("exceptions", func() {
		BeforeEach(func() {
			_, err := engine.StartManualFocus(ctx, "", 2*time.Hour)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should lift blocking and charge the encrypted budget", func() {
			granted, s, err := engine.GrantException(ctx, 10*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(granted).To(Equal(10 * time.Minute))
			Expect(s.State).To(Equal(domain.StateExceptionGranted))
			Expect(installedRules(ruleFile)).To(BeEmpty())

			st, err := state.LoadException(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.DayUsedMs).To(Equal((10 * time.Minute).Milliseconds()))
		})

		It("should stop granting once the day's budget is spent", func() {
			granted, _, err := engine.GrantException(ctx, time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(granted).To(Equal(30 * time.Minute))

			_, err = engine.EndException(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = engine.GrantException(ctx, time.Minute)
			Expect(err).To(MatchError(domain.ErrBudgetExhausted))
		})
	})

	Describe("disabling", func() {
		It("should clear rules and timers", func() {
			s, err := engine.SetEnabled(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State).To(Equal(domain.StateDisabled))
			Expect(s.ManualFocusEndTime).To(BeNil())
			Expect(installedRules(ruleFile)).To(BeEmpty())
		})
	})
})
