// Package segment turns a continuous per-participant audio stream into
// discrete utterances using silence-based endpointing.
//
// A [Segmenter] consumes one participant's capture channel and emits
// [types.Utterance] values on its output channel. Frames are downmixed to the
// transcription format (16 kHz mono) on the way in; an attached VAD session
// classifies each frame, and three durations drive the segmentation policy:
//
//   - Silence — trailing silence that closes the current utterance.
//   - Min     — utterances shorter than this are discarded as noise.
//   - Max     — an utterance is force-closed at this length and a new one
//     begins immediately, bounding memory under continuous speech.
//
// Leading silence is never buffered, and trailing silence is trimmed from the
// emitted PCM. When the input channel closes (participant left, stream
// error), the segmenter flushes its final buffered segment and closes its
// output channel — closure of the output is the capture-closed signal the
// orchestrator tears the pipeline down on.
package segment

import (
	"log/slog"
	"time"

	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/provider/vad"
	"github.com/MrWong99/voxlate/pkg/provider/vad/energy"
	"github.com/MrWong99/voxlate/pkg/types"
)

// Default segmentation policy. Silence matches the original relay's 500 ms
// endpoint; Max bounds buffering under continuous unsegmented speech.
const (
	DefaultSilence = 500 * time.Millisecond
	DefaultMin     = 300 * time.Millisecond
	DefaultMax     = 10 * time.Second

	// outBuffer is the utterance channel capacity. Small: the orchestrator
	// consumes promptly, and per-utterance payloads are large.
	outBuffer = 8
)

// Config tunes a [Segmenter]. The zero value is usable — every field falls
// back to its default.
type Config struct {
	// Silence is the trailing-silence duration that closes an utterance.
	Silence time.Duration

	// Min is the minimum utterance duration; shorter segments are dropped as
	// noise, not errors.
	Min time.Duration

	// Max force-closes an utterance regardless of silence.
	Max time.Duration

	// VAD supplies the speech detector. Nil defaults to the energy gate.
	VAD vad.Engine

	// SpeechThreshold and SilenceThreshold are passed through to the VAD
	// session in the engine's native scale. Zero lets the engine choose.
	SpeechThreshold  float64
	SilenceThreshold float64
}

// withDefaults returns cfg with zero fields replaced by package defaults.
func (c Config) withDefaults() Config {
	if c.Silence <= 0 {
		c.Silence = DefaultSilence
	}
	if c.Min <= 0 {
		c.Min = DefaultMin
	}
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	if c.VAD == nil {
		c.VAD = energy.New()
	}
	return c
}

// Segmenter owns the endpointing state for one participant stream. All
// mutable state is confined to the run goroutine; the exported surface is one
// receive-only channel.
type Segmenter struct {
	participantID string
	cfg           Config
	in            <-chan audio.Frame
	out           chan types.Utterance
	det           vad.SessionHandle
	log           *slog.Logger
}

// New creates a Segmenter for one participant's capture stream and starts its
// processing goroutine. The goroutine exits when in closes; the caller must
// then drain [Segmenter.Utterances] to completion.
func New(participantID string, in <-chan audio.Frame, cfg Config) (*Segmenter, error) {
	cfg = cfg.withDefaults()

	det, err := cfg.VAD.NewSession(vad.Config{
		SampleRate:       audio.FormatSTT.SampleRate,
		SpeechThreshold:  cfg.SpeechThreshold,
		SilenceThreshold: cfg.SilenceThreshold,
	})
	if err != nil {
		return nil, err
	}

	s := &Segmenter{
		participantID: participantID,
		cfg:           cfg,
		in:            in,
		out:           make(chan types.Utterance, outBuffer),
		det:           det,
		log:           slog.With("component", "segmenter", "participant", participantID),
	}
	go s.run()
	return s, nil
}

// Utterances returns the output channel. It is closed after the input channel
// closes and the final segment (if any) has been flushed.
func (s *Segmenter) Utterances() <-chan types.Utterance {
	return s.out
}

// run is the single goroutine responsible for speech detection, buffering,
// and utterance emission.
func (s *Segmenter) run() {
	defer close(s.out)
	defer s.det.Close()

	conv := audio.Converter{Target: audio.FormatSTT}

	var (
		buf       []byte        // accumulated PCM for the current utterance
		speechEnd int           // bytes of buf up to and including the last speech frame
		hadSpeech bool          // true once any speech frame has been buffered
		silence   time.Duration // consecutive silence accumulated after speech
		start     time.Duration // stream position where the current utterance began
		pos       time.Duration // running stream position
		seq       uint64        // per-participant utterance counter
	)

	// doFlush emits the buffered speech (trailing silence trimmed) if it
	// meets the minimum duration, and resets the buffer state regardless.
	doFlush := func() {
		pcm := buf[:speechEnd]
		emit := hadSpeech && audio.PCMDuration(pcm, audio.FormatSTT) >= s.cfg.Min

		if emit {
			seq++
			end := start + audio.PCMDuration(pcm, audio.FormatSTT)
			s.out <- types.Utterance{
				ParticipantID: s.participantID,
				Seq:           seq,
				PCM:           pcm,
				SampleRate:    audio.FormatSTT.SampleRate,
				Start:         start,
				End:           end,
			}
		} else if hadSpeech {
			s.log.Debug("segment below minimum duration, dropped as noise",
				"duration", audio.PCMDuration(pcm, audio.FormatSTT))
		}

		buf = nil
		speechEnd = 0
		hadSpeech = false
		silence = 0
	}

	for frame := range s.in {
		f := conv.Convert(frame)
		if len(f.Data) == 0 {
			continue
		}

		chunkDur := f.Duration()
		ev, err := s.det.ProcessFrame(f.Data)
		if err != nil {
			// Detector failure on one frame: treat as silence and move on.
			s.log.Warn("vad error, frame treated as silence", "error", err)
			ev = vad.VADEvent{Type: vad.VADSilence}
		}

		if ev.Speech() {
			if !hadSpeech {
				start = pos
			}
			hadSpeech = true
			silence = 0
			buf = append(buf, f.Data...)
			speechEnd = len(buf)

			if audio.PCMDuration(buf, audio.FormatSTT) >= s.cfg.Max {
				doFlush()
			}
		} else if hadSpeech {
			// Trailing (or inner-pause) silence: buffered so a resuming
			// speaker keeps their pause, but never included in the emitted
			// PCM unless speech resumes.
			silence += chunkDur
			buf = append(buf, f.Data...)
			if silence >= s.cfg.Silence {
				doFlush()
			}
		}
		// Leading silence before any speech is discarded.

		pos += chunkDur
	}

	// Input closed: capture is gone. Flush whatever speech is buffered.
	doFlush()
}
