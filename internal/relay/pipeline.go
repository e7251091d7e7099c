package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/voxlate/internal/resilience"
	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	"github.com/MrWong99/voxlate/pkg/provider/tts"
	"github.com/MrWong99/voxlate/pkg/types"
)

// runUtterance drives one utterance through transcribe → correct → translate
// → synthesize, then publishes under the participant's sequence gate. Every
// exit path releases the gate so later utterances never stall behind a failed
// one.
func (s *Session) runUtterance(ctx context.Context, p *participant, utt types.Utterance, pcfg types.ParticipantConfig) {
	start := time.Now()
	defer p.gate.release(utt.Seq)

	log := s.log.With("participant", p.id, "seq", utt.Seq)

	// ── Transcribe ──
	res, err := resilience.Retry(ctx, s.retry, func(ctx context.Context) (stt.Result, error) {
		sctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
		defer cancel()
		t0 := time.Now()
		r, err := s.cfg.Stages.STT.Transcribe(sctx, stt.Request{
			PCM:        utt.PCM,
			SampleRate: utt.SampleRate,
			Language:   languageHint(pcfg.InputLanguage),
		})
		s.metrics.STTDuration.Record(ctx, time.Since(t0).Seconds())
		return r, err
	})
	if err != nil {
		s.finishFailed(ctx, log, "transcription", err)
		return
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		s.dropped.Add(1)
		s.metrics.RecordUtterance(ctx, "no_speech")
		log.Debug("empty transcript, utterance dropped")
		return
	}
	if s.cfg.Corrector != nil {
		text = s.cfg.Corrector.Correct(text)
	}

	sourceLang := resolveSourceLanguage(pcfg.InputLanguage, res.Language)
	targetLang := pcfg.OutputLanguage
	if targetLang == "" {
		targetLang = types.DefaultLanguage
	}

	// ── Translate ──
	// Same-language speech passes through untouched, without a provider call.
	translated := text
	if !strings.EqualFold(sourceLang, targetLang) {
		t0 := time.Now()
		translated, err = s.translator.translate(ctx, text, sourceLang, targetLang)
		s.metrics.TranslateDuration.Record(ctx, time.Since(t0).Seconds())
		if err != nil {
			s.finishFailed(ctx, log, "translation", err)
			return
		}
	}

	pair := types.TranscriptPair{
		ParticipantID:  p.id,
		Seq:            utt.Seq,
		OriginalText:   text,
		SourceLanguage: sourceLang,
		TranslatedText: translated,
		TargetLanguage: targetLang,
	}

	// ── Synthesize ──
	// An empty translation has nothing to voice, so the provider is never
	// called and the pair publishes without audio. A synthesis failure
	// likewise silences the clip but never suppresses the pair.
	var clip types.SynthesizedClip
	var synthErr error
	haveClip := translated != ""
	if haveClip {
		clip, synthErr = resilience.Retry(ctx, s.retry, func(ctx context.Context) (types.SynthesizedClip, error) {
			sctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
			defer cancel()
			t0 := time.Now()
			c, err := s.cfg.Stages.TTS.Synthesize(sctx, tts.Request{
				Text:     translated,
				VoiceID:  pcfg.VoiceID,
				Language: targetLang,
			})
			s.metrics.TTSDuration.Record(ctx, time.Since(t0).Seconds())
			return c, err
		})
	}
	if ctx.Err() != nil {
		// Participant left or session closed while this utterance was in
		// flight; nothing of it may surface now.
		s.failed.Add(1)
		s.metrics.RecordUtterance(ctx, "cancelled")
		return
	}
	if !haveClip {
		log.Debug("empty translation, no clip produced")
	} else if synthErr != nil {
		haveClip = false
		log.Warn("synthesis failed, publishing transcript without audio",
			"class", fault.Classify(synthErr).String(), "error", synthErr)
	}

	// ── Publish in sequence order ──
	select {
	case <-p.gate.turn(utt.Seq):
	case <-ctx.Done():
		s.failed.Add(1)
		s.metrics.RecordUtterance(ctx, "cancelled")
		return
	}

	if err := s.cfg.Publisher.Publish(ctx, pair); err != nil {
		log.Warn("transcript publish failed", "error", err)
	}
	if s.cfg.Archive != nil {
		if err := s.cfg.Archive.Append(ctx, s.cfg.SessionID, pair); err != nil {
			log.Warn("transcript archive failed", "error", err)
		}
	}
	if haveClip {
		clip.ParticipantID = p.id
		clip.Seq = utt.Seq
		// A leave can land between winning the gate and this point, and its
		// purge of the playback queue must not be followed by a late enqueue.
		if ctx.Err() == nil {
			s.cfg.Scheduler.Enqueue(clip)
		}
	}

	s.published.Add(1)
	s.metrics.RecordUtterance(ctx, "published")
	s.metrics.UtteranceDuration.Record(ctx, time.Since(start).Seconds())
	log.Debug("utterance published",
		"source", sourceLang, "target", targetLang,
		"latency", time.Since(start))
}

// finishFailed accounts for an utterance that could not produce a transcript.
// No-speech outcomes are expected and logged at debug; everything else warns.
func (s *Session) finishFailed(ctx context.Context, log *slog.Logger, stage string, err error) {
	switch fault.Classify(err) {
	case fault.ClassNoSpeech:
		s.dropped.Add(1)
		s.metrics.RecordUtterance(ctx, "no_speech")
		log.Debug("no recognizable speech, utterance dropped")
	default:
		s.failed.Add(1)
		s.metrics.RecordUtterance(ctx, "failed")
		log.Warn("stage failed, utterance skipped",
			"stage", stage, "class", fault.Classify(err).String(), "error", err)
	}
}

// languageHint maps a configured input language to the ISO code hint the
// transcription provider expects.
func languageHint(input string) string {
	if input == "" || input == types.AutoDetect {
		return types.AutoDetect
	}
	if l, ok := types.LanguageByName(input); ok {
		return l.Code
	}
	return types.AutoDetect
}

// resolveSourceLanguage picks the human-readable source language for the
// transcript pair: the configured input language, or the provider-detected
// one under auto-detection.
func resolveSourceLanguage(configured, detected string) string {
	if configured != "" && configured != types.AutoDetect {
		return configured
	}
	return types.LanguageName(detected)
}
