package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// Keys inside the key-value namespaces.
const (
	keyConfig      = "config"
	keySession     = "focusSession"
	keyException   = "exceptionState"
	keyToken       = "calendarToken"
	keyBlockedTabs = "blockedTabs"
)

// StateStore maps typed documents onto a domain.KeyValueStore as JSON.
// Configuration goes to the sync namespace, everything else to local.
type StateStore struct {
	kv domain.KeyValueStore
}

// NewStateStore wraps kv.
func NewStateStore(kv domain.KeyValueStore) *StateStore {
	return &StateStore{kv: kv}
}

// DefaultConfiguration is what an empty store holds: enabled, with the manual profile only.
func DefaultConfiguration() *domain.Configuration {
	return &domain.Configuration{
		Enabled:  true,
		Profiles: []domain.Profile{{Name: domain.ManualProfileName}},
	}
}

func (s *StateStore) load(ctx context.Context, ns domain.Namespace, key string, v any) (bool, error) {
	got, err := s.kv.Get(ctx, ns, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	raw, ok := got[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *StateStore) save(ctx context.Context, ns domain.Namespace, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, ns, map[string][]byte{key: raw}); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// LoadConfig returns the stored configuration, or DefaultConfiguration when none is stored.
func (s *StateStore) LoadConfig(ctx context.Context) (*domain.Configuration, error) {
	cfg := &domain.Configuration{}
	found, err := s.load(ctx, domain.NamespaceSync, keyConfig, cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return DefaultConfiguration(), nil
	}
	return cfg, nil
}

func (s *StateStore) SaveConfig(ctx context.Context, cfg *domain.Configuration) error {
	return s.save(ctx, domain.NamespaceSync, keyConfig, cfg)
}

// LoadSession returns a zero session when none is stored.
func (s *StateStore) LoadSession(ctx context.Context) (*domain.FocusSession, error) {
	sess := &domain.FocusSession{}
	if _, err := s.load(ctx, domain.NamespaceLocal, keySession, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *StateStore) SaveSession(ctx context.Context, sess *domain.FocusSession) error {
	return s.save(ctx, domain.NamespaceLocal, keySession, sess)
}

// LoadException returns nil when nothing is stored.
func (s *StateStore) LoadException(ctx context.Context) (*domain.ExceptionState, error) {
	st := &domain.ExceptionState{}
	found, err := s.load(ctx, domain.NamespaceLocal, keyException, st)
	if err != nil || !found {
		return nil, err
	}
	return st, nil
}

func (s *StateStore) SaveException(ctx context.Context, st *domain.ExceptionState) error {
	return s.save(ctx, domain.NamespaceLocal, keyException, st)
}

// Token returns the stored calendar token.
func (s *StateStore) Token(ctx context.Context) (string, error) {
	var token string
	found, err := s.load(ctx, domain.NamespaceLocal, keyToken, &token)
	if err != nil {
		return "", err
	}
	if !found || strings.TrimSpace(token) == "" {
		return "", domain.ErrCalendarUnauthorized
	}
	return token, nil
}

func (s *StateStore) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty token")
	}
	return s.save(ctx, domain.NamespaceLocal, keyToken, token)
}

func (s *StateStore) ClearToken(ctx context.Context) error {
	return s.kv.Remove(ctx, domain.NamespaceLocal, keyToken)
}

// BlockedTabs returns the tab id to original url map kept for the tab collaborator.
func (s *StateStore) BlockedTabs(ctx context.Context) (map[string]string, error) {
	tabs := map[string]string{}
	if _, err := s.load(ctx, domain.NamespaceLocal, keyBlockedTabs, &tabs); err != nil {
		return nil, err
	}
	return tabs, nil
}

func (s *StateStore) SaveBlockedTabs(ctx context.Context, tabs map[string]string) error {
	return s.save(ctx, domain.NamespaceLocal, keyBlockedTabs, tabs)
}

var (
	_ domain.ConfigStore    = (*StateStore)(nil)
	_ domain.SessionStore   = (*StateStore)(nil)
	_ domain.ExceptionStore = (*StateStore)(nil)
	_ domain.TokenStore     = (*StateStore)(nil)
)
