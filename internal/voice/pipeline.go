package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/ensotalk/internal/journal"
	"github.com/MrWong99/ensotalk/internal/observe"
	"github.com/MrWong99/ensotalk/pkg/audio"
	"github.com/MrWong99/ensotalk/pkg/provider/llm"
	"github.com/MrWong99/ensotalk/pkg/provider/stt"
	"github.com/MrWong99/ensotalk/pkg/provider/tts"
)

const journalTimeout = 5 * time.Second

// runPipeline processes one utterance on the worker goroutine and reports
// progress to the loop. It always posts a final done message.
func (c *Controller) runPipeline(ctx context.Context, art audio.Artifact, mode ListenMode) {
	ctx, span := observe.StartStage(ctx, "pipeline", attribute.String("mode", mode.String()))
	start := time.Now()
	ex := journal.Exchange{StartedAt: c.clock.Now(), Mode: mode.String()}

	verr := c.pipeline(ctx, art, &ex)

	ex.Total = time.Since(start)
	c.metrics.PipelineDuration.Record(ctx, ex.Total.Seconds())
	outcome := "completed"
	if verr != nil {
		ex.ErrorKind = verr.Kind.String()
		ex.ErrorMessage = verr.UserMessage()
		outcome = "failed"
		if verr.Kind == EmptyTranscript {
			outcome = "empty"
		}
	}
	c.metrics.RecordUtterance(ctx, outcome)
	if verr != nil && !verr.Silent() {
		observe.EndSpan(span, verr)
	} else {
		observe.EndSpan(span, nil)
	}

	c.record(ctx, ex)
	c.post(stageMsg{done: true, err: verr})
}

// pipeline runs the stages in order and stops at the first failure.
func (c *Controller) pipeline(ctx context.Context, art audio.Artifact, ex *journal.Exchange) *Error {
	log := observe.Logger(ctx)

	data, err := art.Bytes()
	if rerr := art.Release(); rerr != nil {
		log.Warn("release utterance", "name", art.Name(), "err", rerr)
	}
	if err != nil {
		return newError(CaptureFailure, stageTranscribe, "Failed to read recording", err)
	}

	text, verr := c.transcribe(ctx, data, art.Name(), ex)
	if verr != nil {
		return verr
	}
	ex.Transcript = text
	log.Info("transcribed utterance", "chars", len(text))
	c.post(stageMsg{state: Dispatching, transcript: text})

	reply, verr := c.dispatch(ctx, text, ex)
	if verr != nil {
		return verr
	}
	ex.Reply = reply
	c.post(stageMsg{state: Speaking, reply: reply})

	return c.speak(ctx, reply, ex)
}

func (c *Controller) transcribe(ctx context.Context, data []byte, name string, ex *journal.Exchange) (string, *Error) {
	if !c.creds.hasTranscription() {
		return "", newError(ConfigurationMissing, stageTranscribe,
			c.cfg.TranscriptionService+" API key not configured", nil)
	}

	vocabulary := c.Vocabulary()
	ctx, span := observe.StartStage(ctx, "transcribe")
	start := time.Now()
	text, err := c.providers.STT.Transcribe(ctx, stt.Request{
		Audio:    data,
		Filename: name,
		Language: c.cfg.Language,
		Keywords: vocabulary,
		APIKey:   c.creds.Transcription,
	})
	ex.STTLatency = time.Since(start)
	c.metrics.STTDuration.Record(ctx, ex.STTLatency.Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		if errors.Is(err, stt.ErrMissingAPIKey) {
			return "", newError(ConfigurationMissing, stageTranscribe,
				c.cfg.TranscriptionService+" API key not configured", err)
		}
		return "", newError(NetworkFailure, stageTranscribe, "", err)
	}

	if c.corrector != nil && len(vocabulary) > 0 && strings.TrimSpace(text) != "" {
		corrected, err := c.corrector.Correct(ctx, text, vocabulary)
		if err != nil {
			observe.Logger(ctx).Warn("transcript correction failed, using raw text", "err", err)
		} else {
			text = corrected
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", newError(EmptyTranscript, stageTranscribe, "", nil)
	}
	return text, nil
}

func (c *Controller) dispatch(ctx context.Context, text string, ex *journal.Exchange) (string, *Error) {
	tokenMissing := c.cfg.ChatService + " token not configured"
	noReply := "No reply from " + c.cfg.ChatService
	if !c.creds.hasChat() {
		return "", newError(ConfigurationMissing, stageDispatch, tokenMissing, nil)
	}

	ctx, span := observe.StartStage(ctx, "dispatch")
	start := time.Now()
	resp, err := c.providers.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		SystemPrompt: c.cfg.SystemPrompt,
		APIKey:       c.creds.Chat,
	})
	ex.LLMLatency = time.Since(start)
	c.metrics.LLMDuration.Record(ctx, ex.LLMLatency.Seconds())
	observe.EndSpan(span, err)

	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		return "", newError(ConfigurationMissing, stageDispatch, tokenMissing, err)
	case errors.Is(err, llm.ErrEmptyReply):
		return "", newError(NetworkFailure, stageDispatch, noReply, err)
	case err != nil:
		return "", newError(NetworkFailure, stageDispatch, "", err)
	}

	reply := ""
	if resp != nil {
		reply = strings.TrimSpace(resp.Content)
	}
	if reply == "" {
		return "", newError(NetworkFailure, stageDispatch, noReply, nil)
	}
	return reply, nil
}

// speak synthesizes reply and plays it to completion. Without a synthesis
// credential the fallback synthesizer is used with its own default voice.
func (c *Controller) speak(ctx context.Context, reply string, ex *journal.Exchange) *Error {
	synth := c.providers.TTS
	req := tts.Request{
		Text:     reply,
		Voice:    c.cfg.Voice,
		Language: c.cfg.Language,
		APIKey:   c.creds.Synthesis,
	}
	if !c.creds.hasSynthesis() {
		if c.providers.FallbackTTS == nil {
			return newError(ConfigurationMissing, stageSpeak, "Speech synthesis key not configured", nil)
		}
		synth = c.providers.FallbackTTS
		req.Voice = ""
		req.APIKey = ""
	}

	sctx, span := observe.StartStage(ctx, "synthesize")
	start := time.Now()
	data, err := synth.Synthesize(sctx, req)
	ex.TTSLatency = time.Since(start)
	c.metrics.TTSDuration.Record(sctx, ex.TTSLatency.Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		if errors.Is(err, tts.ErrMissingAPIKey) {
			return newError(ConfigurationMissing, stageSpeak, "Speech synthesis key not configured", err)
		}
		return newError(NetworkFailure, stageSpeak, "", err)
	}
	if len(data) == 0 {
		return newError(NetworkFailure, stageSpeak, "Speech synthesis returned no audio", nil)
	}

	pctx, span := observe.StartStage(ctx, "play")
	start = time.Now()
	err = c.play(pctx, data)
	ex.PlaybackLatency = time.Since(start)
	c.metrics.PlaybackDuration.Record(pctx, ex.PlaybackLatency.Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		return newError(PlaybackFailure, stagePlay, "", err)
	}
	return nil
}

// play starts playback and polls until it finishes. The playback handle is
// closed on every path, which releases the synthesized audio.
func (c *Controller) play(ctx context.Context, data []byte) error {
	pb, err := c.providers.Player.Play(ctx, data)
	if err != nil {
		return err
	}
	defer func() {
		if err := pb.Close(); err != nil {
			observe.Logger(ctx).Warn("close playback", "err", err)
		}
	}()

	poll := time.NewTicker(c.cfg.PlaybackPoll)
	defer poll.Stop()
	for pb.Playing() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("playback interrupted: %w", ctx.Err())
		case <-poll.C:
		}
	}
	return nil
}

// record writes ex to the journal. Failures are logged and otherwise
// ignored; the journal outlives a cancelled run context.
func (c *Controller) record(ctx context.Context, ex journal.Exchange) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := c.journal.Record(ctx, ex); err != nil {
		observe.Logger(ctx).Warn("journal record failed", "err", err)
	}
}
