// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	"github.com/MrWong99/voxlate/pkg/types"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup and
// shared across all transcriptions; each Transcribe call gets a fresh
// whisper.cpp context because contexts are not thread-safe.
type NativeProvider struct {
	model whisperlib.Model
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &NativeProvider{model: model}, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe converts the utterance to float32 samples, runs whisper.cpp
// inference on a fresh context, and returns the concatenated segment text.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, fmt.Errorf("whisper: empty utterance: %w", fault.ErrNoSpeech)
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}

	pcm := req.PCM
	if req.SampleRate > 0 && req.SampleRate != whisperSampleRate {
		pcm = audio.ResampleMono16(pcm, req.SampleRate, whisperSampleRate)
	}
	samples := pcmToFloat32(pcm)

	// Contexts are NOT thread-safe, but the model can be shared across
	// goroutines, so each inference gets its own.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("whisper: create context: %w", err))
	}

	// English-only models reject "auto" and concrete non-English codes; keep
	// going with the model default in that case.
	if err := wctx.SetLanguage(requestLanguage(req.Language)); err != nil {
		slog.Warn("whisper: failed to set language, using model default",
			"language", req.Language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("whisper: process audio: %w", err))
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fault.Fatal(fmt.Errorf("whisper: read segment: %w", err))
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" && !isNonSpeechAnnotation(text) {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return stt.Result{}, fmt.Errorf("whisper: no speech recognized: %w", fault.ErrNoSpeech)
	}

	lang := ""
	if req.Language != "" && req.Language != types.AutoDetect {
		lang = req.Language
	}
	return stt.Result{Text: text, Language: lang}, nil
}
