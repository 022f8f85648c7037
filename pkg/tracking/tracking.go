// Package tracking persists per-instance usage sessions (start/stop, hours, cost) in a local JSON file.
package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const FileName = "tracking.json"

type Session struct {
	Start time.Time  `json:"start"`
	Stop  *time.Time `json:"stop"`
	Hours float64    `json:"hours"`
	Cost  float64    `json:"cost"`
}

func (s *Session) Active() bool {
	return s.Stop == nil
}

type Instance struct {
	Name        string     `json:"name"`
	Sessions    []*Session `json:"sessions"`
	TotalHours  float64    `json:"total_hours"`
	TotalCost   float64    `json:"total_cost"`
	LastUpdated *time.Time `json:"last_updated"`
}

func (i *Instance) activeSession() *Session {
	for _, s := range i.Sessions {
		if s.Active() {
			return s
		}
	}
	return nil
}

func (i *Instance) recalculate() {
	i.TotalHours = 0
	i.TotalCost = 0
	for _, s := range i.Sessions {
		i.TotalHours += s.Hours
		i.TotalCost += s.Cost
	}
}

type fileFormat struct {
	Instances map[string]*Instance `json:"instances"`
}

// LifetimeStats is the cumulative usage of one instance.
type LifetimeStats struct {
	TotalHours   float64
	TotalCost    float64
	SessionCount int
	Active       bool
}

// Manager reads and writes the tracking file. All methods load the file on
// every call, so separate CLI invocations never see stale data.
type Manager struct {
	path string
	lock sync.Mutex
	Now  func() time.Time
}

func New(dir string) *Manager {
	return &Manager{
		path: filepath.Join(dir, FileName),
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) load() (*fileFormat, error) {
	data := &fileFormat{Instances: make(map[string]*Instance)}
	contents, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return data, nil
		}
		return data, fmt.Errorf("could not read tracking file: %w", err)
	}
	if err = json.Unmarshal(contents, data); err != nil {
		return &fileFormat{Instances: make(map[string]*Instance)}, fmt.Errorf("could not parse tracking file %s: %w", m.path, err)
	}
	if data.Instances == nil {
		data.Instances = make(map[string]*Instance)
	}
	return data, nil
}

func (m *Manager) save(data *fileFormat) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return fmt.Errorf("could not create tracking directory: %w", err)
	}
	contents, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err = os.WriteFile(tmp, contents, 0600); err != nil {
		return fmt.Errorf("could not write tracking file: %w", err)
	}
	return os.Rename(tmp, m.path)
}

// RecordStart opens a new session. An already open session is closed first,
// with its hours computed but no cost, as the price it ran at is unknown.
func (m *Manager) RecordStart(instanceID string, name string) (*Session, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, err := m.load()
	if err != nil {
		return nil, err
	}
	now := m.Now()
	inst, ok := data.Instances[instanceID]
	if !ok {
		inst = &Instance{Name: name}
		data.Instances[instanceID] = inst
	}
	if name != "" {
		inst.Name = name
	}
	if active := inst.activeSession(); active != nil {
		stop := now
		active.Stop = &stop
		active.Hours = now.Sub(active.Start).Hours()
	}
	session := &Session{Start: now}
	inst.Sessions = append(inst.Sessions, session)
	inst.LastUpdated = &now
	inst.recalculate()
	return session, m.save(data)
}

// RecordStop closes the open session and prices it at hourlyPrice (when > 0).
// It returns nil when the instance has no open session.
func (m *Manager) RecordStop(instanceID string, hourlyPrice float64, name string) (*Session, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, err := m.load()
	if err != nil {
		return nil, err
	}
	inst, ok := data.Instances[instanceID]
	if !ok {
		return nil, nil
	}
	if name != "" {
		inst.Name = name
	}
	active := inst.activeSession()
	if active == nil {
		return nil, nil
	}
	now := m.Now()
	active.Stop = &now
	active.Hours = now.Sub(active.Start).Hours()
	if hourlyPrice > 0 {
		active.Cost = active.Hours * hourlyPrice
	}
	inst.LastUpdated = &now
	inst.recalculate()
	return active, m.save(data)
}

// Instance returns the tracking data of one instance, or nil.
func (m *Manager) Instance(instanceID string) (*Instance, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, err := m.load()
	if err != nil {
		return nil, err
	}
	return data.Instances[instanceID], nil
}

// All returns every tracked instance keyed by instance ID.
func (m *Manager) All() (map[string]*Instance, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, err := m.load()
	if err != nil {
		return nil, err
	}
	return data.Instances, nil
}

// IDs returns the tracked instance IDs, sorted.
func (m *Manager) IDs() ([]string, error) {
	all, err := m.All()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Lifetime returns cumulative stats, or nil if the instance was never tracked.
func (m *Manager) Lifetime(instanceID string) (*LifetimeStats, error) {
	inst, err := m.Instance(instanceID)
	if err != nil || inst == nil {
		return nil, err
	}
	return &LifetimeStats{
		TotalHours:   inst.TotalHours,
		TotalCost:    inst.TotalCost,
		SessionCount: len(inst.Sessions),
		Active:       inst.activeSession() != nil,
	}, nil
}

// ClearInstance removes one instance and reports whether it was tracked.
func (m *Manager) ClearInstance(instanceID string) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, err := m.load()
	if err != nil {
		return false, err
	}
	if _, ok := data.Instances[instanceID]; !ok {
		return false, nil
	}
	delete(data.Instances, instanceID)
	return true, m.save(data)
}

// ClearAll removes all tracking data and returns how many instances were dropped.
func (m *Manager) ClearAll() (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	data, err := m.load()
	if err != nil {
		return 0, err
	}
	n := len(data.Instances)
	return n, m.save(&fileFormat{Instances: make(map[string]*Instance)})
}
