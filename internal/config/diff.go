package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only LogLevel and Vocabulary are applied without a restart; every other
// changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VocabularyChanged bool
	NewVocabulary     []string

	// RestartRequired names the sections that changed but are only read at
	// startup, e.g. "providers" or "session.vad".
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VocabularyChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !slices.Equal(old.Session.Vocabulary, new.Session.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = slices.Clone(new.Session.Vocabulary)
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"session.listen_mode", old.Session.ListenMode, new.Session.ListenMode},
		{"session.vad", old.Session.VAD, new.Session.VAD},
		{"session.system_prompt", old.Session.SystemPrompt, new.Session.SystemPrompt},
		{"session.language", old.Session.Language, new.Session.Language},
		{"session.correction", old.Session.Correction, new.Session.Correction},
		{"providers", old.Providers, new.Providers},
		{"credentials", old.Credentials, new.Credentials},
		{"journal", old.Journal, new.Journal},
		{"telemetry", old.Telemetry, new.Telemetry},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
