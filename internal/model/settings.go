package model

// Settings are the user preferences the worker persists. Enabled pauses or
// resumes scanning; Preferences is stored as given.
type Settings struct {
	Enabled     bool           `json:"enabled"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// DefaultSettings has scanning enabled and no preferences.
func DefaultSettings() Settings {
	return Settings{Enabled: true}
}
