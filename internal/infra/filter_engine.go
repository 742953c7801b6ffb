package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// DefaultEngineCapacity matches the dynamic rule limit of browser filter engines.
const DefaultEngineCapacity = 5000

// ruleFile is the on-disk document read by the browser bridge.
type ruleFile struct {
	Version int                         `json:"version"`
	Rules   []domain.CompiledFilterRule `json:"rules"`
}

// FileFilterEngine implements domain.FilterEngine over a JSON rule file.
// Rules written by other tools share the file; only the requested ids are removed.
type FileFilterEngine struct {
	path     string
	capacity int
	logger   *zap.Logger
}

// NewFileFilterEngine creates an engine backed by path. capacity <= 0 selects DefaultEngineCapacity.
func NewFileFilterEngine(path string, capacity int, logger *zap.Logger) *FileFilterEngine {
	if capacity <= 0 {
		capacity = DefaultEngineCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileFilterEngine{path: path, capacity: capacity, logger: logger}
}

// Path returns the rule file path.
func (e *FileFilterEngine) Path() string {
	return e.path
}

// ActiveRules returns every rule in the file, sorted by id.
func (e *FileFilterEngine) ActiveRules(ctx context.Context) ([]domain.CompiledFilterRule, error) {
	doc, err := e.read()
	if err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

// ApplyChanges removes and adds rules in one locked read-modify-write.
func (e *FileFilterEngine) ApplyChanges(ctx context.Context, changes domain.RuleChanges) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0700); err != nil {
		return fmt.Errorf("failed to create rule directory: %w", err)
	}

	lockFile, err := os.OpenFile(e.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	doc, err := e.read()
	if err != nil {
		return err
	}

	remove := make(map[int]bool, len(changes.RemoveIDs))
	for _, id := range changes.RemoveIDs {
		remove[id] = true
	}

	next := make([]domain.CompiledFilterRule, 0, len(doc.Rules)+len(changes.AddRules))
	ids := make(map[int]bool, cap(next))
	for _, r := range doc.Rules {
		if remove[r.ID] {
			continue
		}
		next = append(next, r)
		ids[r.ID] = true
	}
	for _, r := range changes.AddRules {
		if ids[r.ID] {
			return fmt.Errorf("rule id %d already installed", r.ID)
		}
		next = append(next, r)
		ids[r.ID] = true
	}

	if len(next) > e.capacity {
		return fmt.Errorf("%d rules requested, capacity %d: %w", len(next), e.capacity, domain.ErrCapacityExceeded)
	}

	sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })
	doc.Version++
	doc.Rules = next

	if err := e.atomicWrite(doc); err != nil {
		return fmt.Errorf("failed to write rules: %w", err)
	}
	e.logger.Debug("rule file updated",
		zap.String("path", e.path),
		zap.Int("rules", len(next)),
		zap.Int("version", doc.Version))
	return nil
}

func (e *FileFilterEngine) read() (*ruleFile, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ruleFile{}, nil
		}
		return nil, err
	}
	var doc ruleFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corrupt rule file %s: %w", e.path, err)
	}
	return &doc, nil
}

// atomicWrite writes the document to a temp file and renames it into place.
func (e *FileFilterEngine) atomicWrite(doc *ruleFile) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := fmt.Sprintf("%s.%d.tmp", e.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, e.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

var _ domain.FilterEngine = (*FileFilterEngine)(nil)
