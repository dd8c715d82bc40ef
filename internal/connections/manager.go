package connections

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

const importedDescription = "Imported connection"

type Option func(*Manager)

// WithClock overrides the time source used for CreatedAt, LastUsed and
// generated import names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager applies validation and bookkeeping on top of a Store.
type Manager struct {
	store Store
	now   func() time.Time
	mu    sync.Mutex
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add creates or replaces a profile. An existing profile keeps its CreatedAt.
func (m *Manager) Add(ctx context.Context, in Input) (Info, error) {
	profile, err := NewProfile(in)
	if err != nil {
		return Info{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	profile.CreatedAt = m.now().UTC()
	existing, err := m.store.Get(ctx, profile.Name)
	switch {
	case err == nil:
		profile.CreatedAt = existing.CreatedAt
	case !errors.Is(err, ErrNotFound):
		return Info{}, fmt.Errorf("load connection %q: %w", profile.Name, err)
	}

	if err := m.store.Put(ctx, profile); err != nil {
		return Info{}, fmt.Errorf("save connection %q: %w", profile.Name, err)
	}
	return profile.Info(), nil
}

// Get returns the full profile and records it as used.
func (m *Manager) Get(ctx context.Context, name string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, err := m.store.Get(ctx, name)
	if err != nil {
		return Profile{}, err
	}
	used := m.now().UTC()
	profile.LastUsed = &used
	if err := m.store.Put(ctx, profile); err != nil {
		return Profile{}, fmt.Errorf("touch connection %q: %w", name, err)
	}
	return profile, nil
}

// Describe returns the password-free view without touching LastUsed.
func (m *Manager) Describe(ctx context.Context, name string) (Info, error) {
	profile, err := m.store.Get(ctx, name)
	if err != nil {
		return Info{}, err
	}
	return profile.Info(), nil
}

func (m *Manager) List(ctx context.Context) ([]Info, error) {
	profiles, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	slices.SortFunc(profiles, func(a, b Profile) int { return strings.Compare(a.Name, b.Name) })
	out := make([]Info, 0, len(profiles))
	for _, profile := range profiles {
		out = append(out, profile.Info())
	}
	return out, nil
}

func (m *Manager) Delete(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Delete(ctx, name)
}

// Export returns the portable form of a profile. The password is only
// included when includePassword is set.
func (m *Manager) Export(ctx context.Context, name string, includePassword bool) (Exported, error) {
	profile, err := m.Get(ctx, name)
	if err != nil {
		return Exported{}, err
	}
	out := Exported{
		Name:        profile.Name,
		Driver:      profile.Driver,
		Host:        profile.Host,
		Port:        profile.Port,
		Database:    profile.Database,
		User:        profile.User,
		SSLMode:     profile.SSLMode,
		Schema:      profile.Schema,
		Description: profile.Description,
	}
	if includePassword {
		out.Password = profile.Password
	}
	return out, nil
}

// Import stores an exported profile and returns the name it was saved under.
func (m *Manager) Import(ctx context.Context, data Exported) (string, error) {
	name := strings.TrimSpace(data.Name)
	if name == "" {
		name = "imported_" + m.now().Format("20060102_150405")
	}
	port := data.Port
	if port == 0 && (data.Driver == "" || data.Driver == DriverPostgres) {
		port = DefaultPostgresPort
	}
	description := data.Description
	if description == "" {
		description = importedDescription
	}
	if _, err := m.Add(ctx, Input{
		Name:        name,
		Driver:      data.Driver,
		Host:        data.Host,
		Port:        port,
		Database:    data.Database,
		User:        data.User,
		Password:    data.Password,
		SSLMode:     data.SSLMode,
		Schema:      data.Schema,
		Description: description,
	}); err != nil {
		return "", err
	}
	return name, nil
}

// NewProfile normalizes and validates an Input. CreatedAt is left unset.
func NewProfile(in Input) (Profile, error) {
	in = normalizeInput(in)
	if err := Validate(in); err != nil {
		return Profile{}, err
	}
	return Profile{
		Name:        in.Name,
		Driver:      in.Driver,
		Host:        in.Host,
		Port:        in.Port,
		Database:    in.Database,
		User:        in.User,
		Password:    in.Password,
		SSLMode:     in.SSLMode,
		Schema:      in.Schema,
		DSN:         in.DSN,
		Description: in.Description,
	}, nil
}

func normalizeInput(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Driver = Driver(strings.ToLower(strings.TrimSpace(string(in.Driver))))
	if in.Driver == "" {
		in.Driver = DriverPostgres
	}
	in.Host = strings.TrimSpace(in.Host)
	in.Database = strings.TrimSpace(in.Database)
	in.User = strings.TrimSpace(in.User)
	in.SSLMode = strings.TrimSpace(in.SSLMode)
	in.Schema = strings.TrimSpace(in.Schema)
	in.DSN = strings.TrimSpace(in.DSN)
	if in.Driver == DriverPostgres && in.Port == 0 && in.DSN == "" {
		in.Port = DefaultPostgresPort
	}
	return in
}
