package ledger

import (
	"context"
	"sync"

	"github.com/sells-group/postsignal/internal/model"
	"github.com/sells-group/postsignal/internal/store"
)

// SettingsKey holds the user settings.
const SettingsKey = "settings"

// Settings persists model.Settings in a store.KV.
type Settings struct {
	kv store.KV
	mu sync.Mutex
}

// NewSettings returns a settings store over kv.
func NewSettings(kv store.KV) *Settings {
	return &Settings{kv: kv}
}

// Get returns the stored settings, or the defaults when none are stored.
func (s *Settings) Get(ctx context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx)
}

// Update replaces the stored settings.
func (s *Settings) Update(ctx context.Context, settings model.Settings) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := putJSON(ctx, s.kv, SettingsKey, settings); err != nil {
		return model.Settings{}, err
	}
	return settings, nil
}

// SetEnabled flips Enabled and keeps the other settings.
func (s *Settings) SetEnabled(ctx context.Context, enabled bool) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.get(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	cur.Enabled = enabled
	if err := putJSON(ctx, s.kv, SettingsKey, cur); err != nil {
		return model.Settings{}, err
	}
	return cur, nil
}

func (s *Settings) get(ctx context.Context) (model.Settings, error) {
	out := model.DefaultSettings()
	err := getJSON(ctx, s.kv, SettingsKey, &out)
	return out, err
}
