// Package app wires the EnsoTalk subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New builds the provider chains,
// the transcript corrector, the exchange journal and the voice controller;
// Run drives the controller; Shutdown tears everything down in order.
//
// Providers come from main via the config registry. For testing, inject mock
// providers and use functional options (WithJournal, WithMetrics, ...) for
// the rest.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/ensotalk/internal/config"
	"github.com/MrWong99/ensotalk/internal/health"
	"github.com/MrWong99/ensotalk/internal/journal"
	"github.com/MrWong99/ensotalk/internal/observe"
	"github.com/MrWong99/ensotalk/internal/resilience"
	"github.com/MrWong99/ensotalk/internal/transcript"
	"github.com/MrWong99/ensotalk/internal/transcript/llmcorrect"
	"github.com/MrWong99/ensotalk/internal/transcript/phonetic"
	"github.com/MrWong99/ensotalk/internal/voice"
	"github.com/MrWong99/ensotalk/pkg/audio"
	"github.com/MrWong99/ensotalk/pkg/provider/llm"
	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	"github.com/MrWong99/ensotalk/pkg/provider/tts"
	"github.com/MrWong99/ensotalk/pkg/provider/vad"
	"github.com/MrWong99/ensotalk/pkg/provider/vad/energy"
)

// Backend is a named provider instance.
type Backend[T any] struct {
	Name     string
	Provider T
}

// Providers holds the provider chains built by main. The first backend of
// each chain is the primary; the rest are failover targets.
type Providers struct {
	Audio audio.Platform
	STT   []Backend[stt.Provider]
	LLM   []Backend[llm.Provider]
	TTS   []Backend[tts.Provider]

	// LocalTTS speaks replies when the synthesis credential is missing.
	// Nil disables the fallback.
	LocalTTS tts.Provider

	// Correction is the model for the LLM transcript pass. Nil reuses the
	// chat chain.
	Correction llm.Provider

	// VAD overrides the energy detector.
	VAD vad.Engine
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	creds     voice.Credentials
	providers *Providers

	journal    journal.Store
	metrics    *observe.Metrics
	levelVar   *slog.LevelVar
	voiceOpts  []voice.Option
	corrector  *transcript.Corrector
	controller *voice.Controller
	checkers   []health.Checker

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithJournal injects the exchange journal. The default is an in-memory
// store sized by journal.memory_limit.
func WithJournal(s journal.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithMetrics injects the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithVoiceOptions passes extra options to the voice controller.
func WithVoiceOptions(opts ...voice.Option) Option {
	return func(a *App) { a.voiceOpts = append(a.voiceOpts, opts...) }
}

// WithChecker adds a readiness check, e.g. a journal database ping.
func WithChecker(c health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, c) }
}

// WithCloser registers fn to run during Shutdown after the controller stops.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New builds the application. creds are the resolved per-stage secrets.
func New(cfg *config.Config, creds config.Credentials, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.journal == nil {
		a.journal = journal.NewMemStore(cfg.Journal.MemoryLimit)
	}

	if providers.Audio == nil {
		return nil, errors.New("app: audio backend is required")
	}
	sttP, err := a.buildSTT()
	if err != nil {
		return nil, err
	}
	llmP, err := a.buildLLM()
	if err != nil {
		return nil, err
	}
	ttsP, err := a.buildTTS()
	if err != nil {
		return nil, err
	}

	a.creds = voiceCredentials(cfg, creds)
	a.corrector = a.buildCorrector(llmP)

	vcfg, err := voiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	vadEngine := providers.VAD
	if vadEngine == nil {
		vadEngine = energy.New()
	}

	vopts := append([]voice.Option{
		voice.WithMetrics(a.metrics),
		voice.WithJournal(a.journal),
		voice.WithCorrector(a.corrector),
	}, a.voiceOpts...)
	a.controller, err = voice.New(voice.Providers{
		Recorder:    providers.Audio,
		Player:      providers.Audio,
		VAD:         vadEngine,
		STT:         sttP,
		LLM:         llmP,
		TTS:         ttsP,
		FallbackTTS: providers.LocalTTS,
	}, a.creds, vcfg, vopts...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.checkers = append([]health.Checker{
		health.LoopCheck("controller", a.controller.Alive),
		health.CredentialsCheck(a.missingCredentials),
	}, a.checkers...)

	return a, nil
}

// ─── Provider chains ─────────────────────────────────────────────────────────

func (a *App) fallbackConfig(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{Kind: kind, Metrics: a.metrics}
}

func (a *App) buildSTT() (stt.Provider, error) {
	chain := a.providers.STT
	if len(chain) == 0 {
		return nil, errors.New("app: stt provider is required")
	}
	if len(chain) == 1 {
		return chain[0].Provider, nil
	}
	fb := resilience.NewSTTFallback(chain[0].Provider, chain[0].Name, a.fallbackConfig("stt"))
	for _, b := range chain[1:] {
		fb.AddFallback(b.Name, ownKeySTT{b.Provider})
	}
	a.checkers = append(a.checkers, health.BreakerCheck("stt", fb.Status))
	return fb, nil
}

func (a *App) buildLLM() (llm.Provider, error) {
	chain := a.providers.LLM
	if len(chain) == 0 {
		return nil, errors.New("app: llm provider is required")
	}
	if len(chain) == 1 {
		return chain[0].Provider, nil
	}
	fb := resilience.NewLLMFallback(chain[0].Provider, chain[0].Name, a.fallbackConfig("llm"))
	for _, b := range chain[1:] {
		fb.AddFallback(b.Name, ownKeyLLM{b.Provider})
	}
	a.checkers = append(a.checkers, health.BreakerCheck("llm", fb.Status))
	return fb, nil
}

func (a *App) buildTTS() (tts.Provider, error) {
	chain := a.providers.TTS
	if len(chain) == 0 {
		return nil, errors.New("app: tts provider is required")
	}
	if len(chain) == 1 {
		return chain[0].Provider, nil
	}
	fb := resilience.NewTTSFallback(chain[0].Provider, chain[0].Name, a.fallbackConfig("tts"))
	for _, b := range chain[1:] {
		fb.AddFallback(b.Name, ownKeyTTS{b.Provider})
	}
	a.checkers = append(a.checkers, health.BreakerCheck("tts", fb.Status))
	return fb, nil
}

func (a *App) buildCorrector(chat llm.Provider) *transcript.Corrector {
	cc := a.cfg.Session.Correction
	var mopts []phonetic.Option
	if cc.PhoneticThreshold > 0 {
		mopts = append(mopts, phonetic.WithPhoneticThreshold(cc.PhoneticThreshold))
	}
	if cc.FuzzyThreshold > 0 {
		mopts = append(mopts, phonetic.WithFuzzyThreshold(cc.FuzzyThreshold))
	}
	copts := []transcript.Option{transcript.WithPhoneticMatcher(phonetic.New(mopts...))}

	if cc.LLM {
		model := a.providers.Correction
		var lopts []llmcorrect.Option
		if model == nil {
			// Reusing the chat chain means reusing its credential too.
			model = chat
			lopts = append(lopts, llmcorrect.WithAPIKey(a.creds.Chat))
		}
		copts = append(copts, transcript.WithLLMCorrector(llmcorrect.New(model, lopts...)))
	}
	return transcript.New(copts...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the voice session controller.
func (a *App) Controller() *voice.Controller { return a.controller }

// Journal returns the exchange journal.
func (a *App) Journal() journal.Store { return a.journal }

// Health returns a handler over the liveness and readiness checks.
func (a *App) Health() *health.Handler { return health.New(a.checkers...) }

// missingCredentials is [voice.Credentials.Missing], except that a missing
// synthesis key is not a problem while the local synthesizer can speak.
func (a *App) missingCredentials() []string {
	missing := a.creds.Missing()
	if a.providers.LocalTTS != nil {
		missing = slices.DeleteFunc(missing, func(s string) bool { return s == "synthesis" })
	}
	return missing
}

// ─── Run / reload / shutdown ─────────────────────────────────────────────────

// Run drives the voice controller until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if m := a.missingCredentials(); len(m) > 0 {
		slog.Warn("credentials missing; the affected stages will fail until configured", "missing", m)
	}
	slog.Info("app running",
		"mode", a.cfg.Session.ListenMode,
		"stt", a.providers.STT[0].Name,
		"llm", a.providers.LLM[0].Name,
		"tts", a.providers.TTS[0].Name,
		"vocabulary", len(a.cfg.Session.Vocabulary),
	)
	return a.controller.Run(ctx)
}

// ApplyConfig applies the hot-reloadable parts of a config change and logs
// the sections that need a restart. It is the [config.Watcher] callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VocabularyChanged {
		a.controller.SetVocabulary(d.NewVocabulary)
		slog.Info("vocabulary reloaded", "terms", len(d.NewVocabulary))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// Shutdown runs the registered closers in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		var errs []error
		for i, closer := range a.closers {
			if ctx.Err() != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				break
			}
			if cerr := closer(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

// SlogLevel maps a configured level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
