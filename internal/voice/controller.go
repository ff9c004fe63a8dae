// Package voice implements the EnsoTalk session controller: a single-session
// state machine that samples the microphone level, detects utterance
// boundaries with a VAD engine, and runs each accepted utterance through the
// transcribe → dispatch → synthesize → play pipeline.
//
// All session state is owned by the goroutine running [Controller.Run].
// Sampling ticks, debounce expiry, caller commands and pipeline progress are
// serialized through that loop, so no state is ever mutated concurrently.
// Observers read [Controller.Snapshot] or receive pushed snapshots from
// [Controller.Subscribe].
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/ensotalk/internal/journal"
	"github.com/MrWong99/ensotalk/internal/observe"
	"github.com/MrWong99/ensotalk/pkg/audio"
	"github.com/MrWong99/ensotalk/pkg/provider/llm"
	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	"github.com/MrWong99/ensotalk/pkg/provider/tts"
	"github.com/MrWong99/ensotalk/pkg/provider/vad"
)

// Defaults applied by [New] to zero [Config] fields.
const (
	DefaultPreRoll              = 300 * time.Millisecond
	DefaultPlaybackPoll         = 100 * time.Millisecond
	DefaultChatService          = "OpenClaw"
	DefaultTranscriptionService = "Whisper"
)

// Pipeline stage names used in errors, spans and metrics.
const (
	stageCapture    = "capture"
	stageTranscribe = "transcribe"
	stageDispatch   = "dispatch"
	stageSpeak      = "speak"
	stagePlay       = "play"
)

// Providers are the collaborators the controller drives. Recorder, Player,
// VAD, STT, LLM and TTS are required. FallbackTTS is used when no synthesis
// credential is configured; it may be nil.
type Providers struct {
	Recorder    audio.Recorder
	Player      audio.Player
	VAD         vad.Engine
	STT         stt.Provider
	LLM         llm.Provider
	TTS         tts.Provider
	FallbackTTS tts.Provider
}

// Credentials are resolved once at startup and never change. An empty
// credential makes its stage fail with [ConfigurationMissing] unless the
// matching Keyless flag says the backend needs none.
type Credentials struct {
	Transcription string
	Chat          string
	Synthesis     string

	TranscriptionKeyless bool
	ChatKeyless          bool
	SynthesisKeyless     bool
}

// Missing returns the names of the credentials that are absent and not
// covered by a keyless backend.
func (c Credentials) Missing() []string {
	var out []string
	if c.Transcription == "" && !c.TranscriptionKeyless {
		out = append(out, "transcription")
	}
	if c.Chat == "" && !c.ChatKeyless {
		out = append(out, "chat")
	}
	if c.Synthesis == "" && !c.SynthesisKeyless {
		out = append(out, "synthesis")
	}
	return out
}

func (c Credentials) hasTranscription() bool { return c.Transcription != "" || c.TranscriptionKeyless }
func (c Credentials) hasChat() bool          { return c.Chat != "" || c.ChatKeyless }
func (c Credentials) hasSynthesis() bool     { return c.Synthesis != "" || c.SynthesisKeyless }

// Config holds the session settings.
type Config struct {
	// VAD configures the detector and the level sampling cadence.
	VAD vad.Config

	// Mode is the listen mode the controller starts in.
	Mode ListenMode

	// SystemPrompt, when set, is sent ahead of every user turn.
	SystemPrompt string

	// Voice and Language are passed to the synthesizer and transcriber.
	Voice    string
	Language string

	// Vocabulary lists uncommon words the speaker is likely to use. It can be
	// replaced at runtime with [Controller.SetVocabulary].
	Vocabulary []string

	// PreRoll is how much audio before the detected speech start is kept
	// when a listening capture becomes an utterance.
	PreRoll time.Duration

	// PlaybackPoll is the interval at which playback completion is checked.
	PlaybackPoll time.Duration

	// ChatService and TranscriptionService name the backends in
	// user-facing error messages.
	ChatService          string
	TranscriptionService string
}

// Corrector rewrites a transcript, typically to fix misrecognised names
// from the session vocabulary.
type Corrector interface {
	Correct(ctx context.Context, text string, vocabulary []string) (string, error)
}

// Option configures a [Controller].
type Option func(*Controller)

// WithClock replaces the wall clock. Tests use it to drive sampling ticks and
// debounce deadlines.
func WithClock(clk Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithJournal records every pipeline run in store.
func WithJournal(store journal.Store) Option {
	return func(c *Controller) { c.journal = store }
}

// WithCorrector applies corr to every transcript before it is dispatched.
func WithCorrector(corr Corrector) Option {
	return func(c *Controller) { c.corrector = corr }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

type commandKind int

const (
	cmdToggle commandKind = iota
	cmdSetMode
)

type command struct {
	kind  commandKind
	mode  ListenMode
	reply chan commandResult
}

type commandResult struct {
	state State
	err   error
}

// stageMsg is posted by the pipeline worker. done marks the end of the run.
type stageMsg struct {
	state      State
	transcript string
	reply      string
	done       bool
	err        *Error
}

// Controller is the session state machine. Create it with [New] and start it
// with [Controller.Run]; the other methods are safe for concurrent use.
type Controller struct {
	providers Providers
	creds     Credentials
	cfg       Config

	clock     Clock
	metrics   *observe.Metrics
	journal   journal.Store
	corrector Corrector
	log       *slog.Logger

	cmds    chan command
	stages  chan stageMsg
	started atomic.Bool
	done    chan struct{}
	stopped chan struct{}
	workers sync.WaitGroup

	vocabMu    sync.RWMutex
	vocabulary []string

	// mu guards snap, subs and closed.
	mu      sync.Mutex
	snap    Snapshot
	subs    map[int]chan Snapshot
	nextSub int
	closed  bool

	// Owned by the Run goroutine.
	runCtx  context.Context
	mode    ListenMode
	busy    bool
	session vad.SessionHandle
	capture audio.Capture
	ticker  Ticker
	timer   Timer
	timerAt time.Time
}

// New validates the configuration and returns a Controller in [Idle]. Zero
// config fields take their defaults; the VAD config defaults as a whole when
// it is zero.
func New(p Providers, creds Credentials, cfg Config, opts ...Option) (*Controller, error) {
	var errs []error
	if p.Recorder == nil {
		errs = append(errs, errors.New("voice: recorder is required"))
	}
	if p.Player == nil {
		errs = append(errs, errors.New("voice: player is required"))
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("voice: vad engine is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("voice: stt provider is required"))
	}
	if p.LLM == nil {
		errs = append(errs, errors.New("voice: llm provider is required"))
	}
	if p.TTS == nil {
		errs = append(errs, errors.New("voice: tts provider is required"))
	}

	if cfg.VAD == (vad.Config{}) {
		cfg.VAD = vad.DefaultConfig()
	}
	if err := cfg.VAD.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Mode != PushToTalk && cfg.Mode != AlwaysListening {
		errs = append(errs, fmt.Errorf("voice: invalid listen mode %d", cfg.Mode))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.PreRoll <= 0 {
		cfg.PreRoll = DefaultPreRoll
	}
	if cfg.PlaybackPoll <= 0 {
		cfg.PlaybackPoll = DefaultPlaybackPoll
	}
	if cfg.ChatService == "" {
		cfg.ChatService = DefaultChatService
	}
	if cfg.TranscriptionService == "" {
		cfg.TranscriptionService = DefaultTranscriptionService
	}

	c := &Controller{
		providers:  p,
		creds:      creds,
		cfg:        cfg,
		clock:      SystemClock{},
		cmds:       make(chan command),
		stages:     make(chan stageMsg),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		vocabulary: slices.Clone(cfg.Vocabulary),
		subs:       map[int]chan Snapshot{},
		mode:       cfg.Mode,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.snap = Snapshot{State: Idle, Mode: cfg.Mode, Level: audio.MinLevelDB, At: c.clock.Now()}
	return c, nil
}

// Run drives the session until ctx is cancelled. It returns nil on
// cancellation. An in-flight pipeline is cancelled through ctx and its
// cleanup completes before Run returns. Run may be called only once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("voice: controller already started")
	}
	defer close(c.done)
	defer c.shutdown()

	c.runCtx = ctx
	c.log.Info("voice controller started", "mode", c.mode)
	if c.mode == AlwaysListening {
		c.listen()
	} else {
		c.publish(nil)
	}

	for {
		select {
		case <-ctx.Done():
			c.log.Info("voice controller stopping")
			return nil
		case cmd := <-c.cmds:
			cmd.reply <- c.handle(cmd)
		case now := <-c.tickC():
			c.tick(now)
		case now := <-c.timerC():
			c.expire(now)
		case msg := <-c.stages:
			c.onStage(msg)
		}
	}
}

// Toggle is the manual trigger. From Idle it starts a recording; while
// recording it stops and submits the utterance; while listening with speech
// in progress it forces the end of speech. In every other state it does
// nothing. It returns the state after the command was applied.
func (c *Controller) Toggle(ctx context.Context) (State, error) {
	r, err := c.send(ctx, command{kind: cmdToggle})
	if err != nil {
		return c.Snapshot().State, err
	}
	return r.state, r.err
}

// SetListenMode switches the listen mode. Setting the active mode is a no-op.
// While a pipeline runs the new mode takes effect when it finishes.
func (c *Controller) SetListenMode(ctx context.Context, mode ListenMode) error {
	if mode != PushToTalk && mode != AlwaysListening {
		return fmt.Errorf("voice: invalid listen mode %d", mode)
	}
	r, err := c.send(ctx, command{kind: cmdSetMode, mode: mode})
	if err != nil {
		return err
	}
	return r.err
}

func (c *Controller) send(ctx context.Context, cmd command) (commandResult, error) {
	if !c.started.Load() {
		return commandResult{}, ErrNotRunning
	}
	cmd.reply = make(chan commandResult, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return commandResult{}, ErrNotRunning
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r, nil
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe returns a channel that receives a snapshot after every change,
// starting with the current one. The channel holds one value; a slow reader
// sees the latest snapshot and never blocks the controller. The returned
// function unsubscribes and closes the channel. The channel is also closed
// when Run returns.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snap

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Alive reports whether the Run loop is active.
func (c *Controller) Alive() bool {
	if !c.started.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// SetVocabulary replaces the session vocabulary. It takes effect with the
// next utterance.
func (c *Controller) SetVocabulary(words []string) {
	c.vocabMu.Lock()
	defer c.vocabMu.Unlock()
	c.vocabulary = slices.Clone(words)
}

// Vocabulary returns a copy of the session vocabulary.
func (c *Controller) Vocabulary() []string {
	c.vocabMu.RLock()
	defer c.vocabMu.RUnlock()
	return slices.Clone(c.vocabulary)
}

// ── Loop ────────────────────────────────────────────────────────────────────

func (c *Controller) tickC() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C()
}

func (c *Controller) timerC() <-chan time.Time {
	if c.timer == nil {
		return nil
	}
	return c.timer.C()
}

func (c *Controller) state() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.State
}

// publish applies fn to the snapshot, stamps it and pushes it to every
// subscriber. A state change is counted in the transition metric.
func (c *Controller) publish(fn func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.snap.State
	if fn != nil {
		fn(&c.snap)
	}
	c.snap.Mode = c.mode
	c.snap.At = c.clock.Now()
	if c.snap.State != prev {
		c.metrics.RecordStateTransition(context.Background(), c.snap.State.String())
		c.log.Debug("voice state changed", "from", prev, "to", c.snap.State, "mode", c.mode)
	}
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.snap
	}
}

func (c *Controller) setState(s State) {
	c.publish(func(snap *Snapshot) { snap.State = s })
}

func (c *Controller) handle(cmd command) commandResult {
	switch cmd.kind {
	case cmdToggle:
		err := c.toggle(c.clock.Now())
		return commandResult{state: c.state(), err: err}
	case cmdSetMode:
		c.setMode(cmd.mode)
		return commandResult{state: c.state()}
	default:
		return commandResult{state: c.state(), err: fmt.Errorf("voice: unknown command %d", cmd.kind)}
	}
}

func (c *Controller) toggle(now time.Time) error {
	switch c.state() {
	case Idle:
		return c.startManual()
	case Recording:
		// Detected speech ends through the detector so a too-short span
		// is still discarded. Listening has nothing to end yet.
		if c.session != nil {
			if ev := c.session.ForceEnd(now); ev != vad.EventNone {
				c.onEvent(ev)
				return nil
			}
		}
		c.finishUtterance()
	}
	return nil
}

// startManual opens a capture without a VAD session. The recording runs
// until the next Toggle.
func (c *Controller) startManual() error {
	capt, err := c.providers.Recorder.StartCapture(c.runCtx)
	if err != nil {
		verr := newError(CaptureFailure, stageCapture, "Failed to start recording", err)
		c.fail(verr)
		return verr
	}
	c.own(capt)
	c.ticker = c.clock.NewTicker(c.cfg.VAD.SampleInterval)
	c.log.Info("recording started", "mode", c.mode)
	c.publish(func(s *Snapshot) {
		s.State = Recording
		s.Transcript = ""
		s.Reply = ""
		s.Err = nil
	})
	return nil
}

// listen arms Listening: a fresh VAD session, a metering capture and the
// sampling ticker. On failure the session drops to Idle with the error shown.
func (c *Controller) listen() {
	sess, err := c.providers.VAD.NewSession(c.cfg.VAD)
	if err != nil {
		c.fail(newError(CaptureFailure, stageCapture, "Failed to start listening", err))
		return
	}
	capt, err := c.providers.Recorder.StartCapture(c.runCtx)
	if err != nil {
		_ = sess.Close()
		c.fail(newError(CaptureFailure, stageCapture, "Failed to start listening", err))
		return
	}
	// Only the pre-roll of a metering capture is ever used.
	if r, ok := capt.(audio.Retainer); ok {
		r.Retain(c.cfg.PreRoll)
	}
	c.session = sess
	c.own(capt)
	c.ticker = c.clock.NewTicker(c.cfg.VAD.SampleInterval)
	c.setState(Listening)
}

func (c *Controller) own(capt audio.Capture) {
	c.capture = capt
	c.metrics.ActiveCaptures.Add(context.Background(), 1)
}

// fail surfaces verr and parks the session in Idle.
func (c *Controller) fail(verr *Error) {
	c.log.Warn("voice session error", "stage", verr.Stage, "kind", verr.Kind, "err", verr)
	c.metrics.RecordStageError(context.Background(), verr.Stage, verr.Kind.String())
	c.publish(func(s *Snapshot) {
		s.State = Idle
		s.Err = verr
		s.Level = audio.MinLevelDB
	})
}

func (c *Controller) tick(now time.Time) {
	if c.capture == nil {
		return
	}
	if !c.capture.Active() {
		c.stopActivity()
		c.resolve(newError(CaptureFailure, stageCapture, "Audio capture stopped unexpectedly", nil))
		return
	}

	level := c.capture.LevelDB()
	c.publish(func(s *Snapshot) { s.Level = level })
	if c.session == nil {
		return
	}
	c.onEvent(c.session.Observe(level, now))
	c.syncTimer(now)
}

func (c *Controller) expire(now time.Time) {
	c.timer = nil
	c.timerAt = time.Time{}
	if c.session == nil {
		return
	}
	c.onEvent(c.session.Expire(now))
	c.syncTimer(now)
}

func (c *Controller) onEvent(ev vad.Event) {
	switch ev {
	case vad.EventSpeechStarted:
		if c.state() != Listening {
			return
		}
		if t, ok := c.capture.(audio.Trimmer); ok {
			t.Trim(c.cfg.PreRoll)
		}
		if r, ok := c.capture.(audio.Retainer); ok {
			r.Retain(0)
		}
		c.log.Debug("speech started")
		c.publish(func(s *Snapshot) {
			s.State = Recording
			s.Transcript = ""
			s.Reply = ""
		})
	case vad.EventSpeechEnded:
		c.finishUtterance()
	case vad.EventSpeechEndedTooShort:
		c.log.Debug("utterance too short, discarding")
		c.stopActivity()
		c.metrics.RecordUtterance(context.Background(), "too_short")
		c.resolve(newError(TooShortUtterance, stageCapture, "", nil))
	}
}

// syncTimer keeps the debounce timer aligned with the session deadline.
func (c *Controller) syncTimer(now time.Time) {
	if c.session == nil {
		c.stopTimer()
		return
	}
	deadline, ok := c.session.Deadline()
	if !ok {
		c.stopTimer()
		return
	}
	if c.timer != nil && c.timerAt.Equal(deadline) {
		return
	}
	c.stopTimer()
	c.timer = c.clock.NewTimer(max(deadline.Sub(now), 0))
	c.timerAt = deadline
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.timerAt = time.Time{}
	}
}

// stopSampling cancels the ticker and debounce timer and discards the VAD
// session. The capture is left open.
func (c *Controller) stopSampling() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.stopTimer()
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			c.log.Debug("close vad session", "err", err)
		}
		c.session = nil
	}
}

// stopActivity stops sampling and discards the open capture, if any.
func (c *Controller) stopActivity() {
	c.stopSampling()
	capt := c.releaseCapture()
	if capt == nil {
		return
	}
	art, err := capt.Stop()
	if err != nil {
		c.log.Debug("stop discarded capture", "err", err)
		return
	}
	if err := art.Release(); err != nil {
		c.log.Warn("release discarded capture", "err", err)
	}
}

func (c *Controller) releaseCapture() audio.Capture {
	capt := c.capture
	if capt != nil {
		c.capture = nil
		c.metrics.ActiveCaptures.Add(context.Background(), -1)
	}
	return capt
}

// finishUtterance closes the capture and hands its artifact to a pipeline
// worker.
func (c *Controller) finishUtterance() {
	c.stopSampling()
	capt := c.releaseCapture()
	if capt == nil {
		c.resolve(newError(CaptureFailure, stageCapture, "No recording in progress", nil))
		return
	}
	art, err := capt.Stop()
	if err != nil {
		c.resolve(newError(CaptureFailure, stageCapture, "Failed to finish recording", err))
		return
	}

	c.busy = true
	c.publish(func(s *Snapshot) {
		s.State = Transcribing
		s.Level = audio.MinLevelDB
	})
	mode := c.mode
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		c.runPipeline(c.runCtx, art, mode)
	}()
}

func (c *Controller) onStage(msg stageMsg) {
	if msg.done {
		c.resolve(msg.err)
		return
	}
	c.publish(func(s *Snapshot) {
		s.State = msg.state
		s.Err = nil
		if msg.transcript != "" {
			s.Transcript = msg.transcript
		}
		if msg.reply != "" {
			s.Reply = msg.reply
		}
	})
}

// resolve is the single terminal decision for an utterance: surface the
// error if it is not silent, then re-arm Listening or return to Idle
// depending on the current mode.
func (c *Controller) resolve(verr *Error) {
	c.busy = false
	if verr != nil {
		c.metrics.RecordStageError(context.Background(), verr.Stage, verr.Kind.String())
		if verr.Silent() {
			c.log.Debug("utterance discarded", "kind", verr.Kind)
		} else {
			c.log.Warn("voice pipeline error", "stage", verr.Stage, "kind", verr.Kind, "err", verr)
			c.publish(func(s *Snapshot) { s.Err = verr })
		}
	}
	c.publish(func(s *Snapshot) { s.Level = audio.MinLevelDB })
	if c.mode == AlwaysListening {
		c.listen()
		return
	}
	c.setState(Idle)
}

func (c *Controller) setMode(mode ListenMode) {
	if mode == c.mode {
		return
	}
	c.log.Info("listen mode changed", "from", c.mode, "to", mode)
	c.mode = mode
	if c.busy {
		c.publish(nil)
		return
	}
	c.stopActivity()
	if mode == AlwaysListening {
		c.listen()
		return
	}
	c.publish(func(s *Snapshot) {
		s.State = Idle
		s.Level = audio.MinLevelDB
	})
}

// post delivers a stage message to the loop. It reports false when the
// controller is shutting down.
func (c *Controller) post(msg stageMsg) bool {
	select {
	case c.stages <- msg:
		return true
	case <-c.stopped:
		return false
	}
}

func (c *Controller) shutdown() {
	c.stopActivity()
	close(c.stopped)
	c.workers.Wait()

	c.publish(func(s *Snapshot) {
		s.State = Idle
		s.Level = audio.MinLevelDB
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.log.Info("voice controller stopped")
}
