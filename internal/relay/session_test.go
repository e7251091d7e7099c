package relay_test

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxlate/internal/relay"
	"github.com/MrWong99/voxlate/pkg/audio"
	audiomock "github.com/MrWong99/voxlate/pkg/audio/mock"
	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxlate/pkg/provider/stt/mock"
	"github.com/MrWong99/voxlate/pkg/provider/translate"
	trmock "github.com/MrWong99/voxlate/pkg/provider/translate/mock"
	"github.com/MrWong99/voxlate/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxlate/pkg/provider/tts/mock"
	"github.com/MrWong99/voxlate/pkg/store"
	"github.com/MrWong99/voxlate/pkg/store/memory"
	"github.com/MrWong99/voxlate/pkg/types"
)

// ─── Test doubles and helpers ─────────────────────────────────────────────────

// publisherRecorder records published pairs in arrival order. An optional
// hook runs before each pair is recorded, letting a test inject events at
// publish time.
type publisherRecorder struct {
	hook func()

	mu    sync.Mutex
	pairs []types.TranscriptPair
}

func (p *publisherRecorder) Publish(_ context.Context, pair types.TranscriptPair) error {
	if p.hook != nil {
		p.hook()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs = append(p.pairs, pair)
	return nil
}

func (p *publisherRecorder) Pairs() []types.TranscriptPair {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := make([]types.TranscriptPair, len(p.pairs))
	copy(snap, p.pairs)
	return snap
}

// toneFrames builds n 20ms frames of 16 kHz mono PCM where every sample holds
// value. A value well above the energy gate reads as speech; zero as silence.
func toneFrames(n int, value int16) []audio.Frame {
	const samplesPerFrame = 320 // 20ms at 16 kHz
	frames := make([]audio.Frame, n)
	for i := range frames {
		data := make([]byte, samplesPerFrame*2)
		for s := 0; s < samplesPerFrame; s++ {
			binary.LittleEndian.PutUint16(data[s*2:], uint16(value))
		}
		frames[i] = audio.Frame{Data: data, SampleRate: 16000, Channels: 1}
	}
	return frames
}

// speak pushes one complete utterance (400ms of tone, 600ms of silence) so
// the segmenter endpoints and emits it.
func speak(ch chan<- audio.Frame, value int16) {
	for _, f := range toneFrames(20, value) {
		ch <- f
	}
	for _, f := range toneFrames(30, 0) {
		ch <- f
	}
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// harness wires a Session to mock providers, an in-memory store and a
// recording publisher.
type harness struct {
	conn  *audiomock.Connection
	sched *audiomock.Scheduler
	sttp  *sttmock.Provider
	trp   *trmock.Provider
	ttsp  *ttsmock.Provider
	mem   *memory.Store
	pub   *publisherRecorder
	sess  *relay.Session
}

// newHarness builds a session over the given capture streams but does not
// start it, so tests can script providers and preferences first.
func newHarness(t *testing.T, inputs map[string]chan audio.Frame) *harness {
	t.Helper()

	streams := make(map[string]<-chan audio.Frame, len(inputs))
	for id, ch := range inputs {
		streams[id] = ch
	}

	h := &harness{
		conn:  &audiomock.Connection{InputStreamsResult: streams},
		sched: &audiomock.Scheduler{},
		sttp: &sttmock.Provider{
			Default: sttmock.Response{Result: stt.Result{Text: "hello there", Language: "en"}},
		},
		trp: &trmock.Provider{
			Default: trmock.Response{Text: "hallo da"},
		},
		ttsp: &ttsmock.Provider{
			Default: ttsmock.Response{Clip: ttsmock.Clip(100 * time.Millisecond)},
		},
		mem: memory.New(),
		pub: &publisherRecorder{},
	}

	sess, err := relay.New(h.conn, relay.Config{
		SessionID: "session-test",
		Prefs:     h.mem.Prefs(),
		Archive:   h.mem.Archive(),
		Cache:     h.mem.Cache(),
		Stages: relay.Stages{
			STT:       h.sttp,
			Translate: h.trp,
			TTS:       h.ttsp,
		},
		Publisher: h.pub,
		Scheduler: h.sched,
	})
	if err != nil {
		t.Fatalf("relay.New: %v", err)
	}
	h.sess = sess
	t.Cleanup(func() { _ = sess.Close() })
	return h
}

// setPrefs stores a participant configuration before the test feeds audio.
func (h *harness) setPrefs(t *testing.T, id, display, input, output string, voice int) {
	t.Helper()
	cfg := store.DefaultConfig(id)
	cfg.DisplayName = display
	cfg.InputLanguage = input
	cfg.OutputLanguage = output
	cfg.VoiceID = voice
	if err := h.mem.Prefs().Set(context.Background(), cfg); err != nil {
		t.Fatalf("Prefs.Set: %v", err)
	}
}

// ─── Tests ────────────────────────────────────────────────────────────────────

func TestSession_PublishesTranslatedUtterance(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 3)

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return len(h.pub.Pairs()) == 1 },
		"no transcript pair published")

	pair := h.pub.Pairs()[0]
	want := types.TranscriptPair{
		ParticipantID:  "p1",
		Seq:            1,
		OriginalText:   "hello there",
		SourceLanguage: "English",
		TranslatedText: "hallo da",
		TargetLanguage: "German",
	}
	if pair != want {
		t.Errorf("pair = %+v, want %+v", pair, want)
	}

	// The transcription got the configured language as its hint.
	if got := h.sttp.TranscribeCalls[0].Language; got != "en" {
		t.Errorf("stt language hint = %q, want en", got)
	}

	// The clip was stamped and enqueued, and the voice slot passed through.
	waitFor(t, 2*time.Second, func() bool { return len(h.sched.Enqueued()) == 1 },
		"no clip enqueued")
	clip := h.sched.Enqueued()[0]
	if clip.ParticipantID != "p1" || clip.Seq != 1 {
		t.Errorf("clip stamped %s/%d, want p1/1", clip.ParticipantID, clip.Seq)
	}
	if got := h.ttsp.SynthesizeCalls[0].VoiceID; got != 3 {
		t.Errorf("tts voice slot = %d, want 3", got)
	}

	// The pair landed in the archive under this session.
	recent, err := h.mem.Archive().Recent(context.Background(), "session-test", 0)
	if err != nil {
		t.Fatalf("Archive.Recent: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("archive holds %d pairs, want 1", len(recent))
	}

	stats := h.sess.Stats()
	if stats.UtterancesPublished != 1 {
		t.Errorf("UtterancesPublished = %d, want 1", stats.UtterancesPublished)
	}
}

func TestSession_SameLanguageSkipsTranslation(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "English", 1)

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return len(h.pub.Pairs()) == 1 },
		"no transcript pair published")

	pair := h.pub.Pairs()[0]
	if pair.TranslatedText != pair.OriginalText {
		t.Errorf("TranslatedText = %q, want OriginalText %q", pair.TranslatedText, pair.OriginalText)
	}
	if got := h.trp.Calls(); got != 0 {
		t.Errorf("translation provider called %d times, want 0", got)
	}
}

func TestSession_AutoDetectUsesProviderLanguage(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", types.AutoDetect, "German", 1)
	h.sttp.Default = sttmock.Response{Result: stt.Result{Text: "bonjour", Language: "fr"}}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return len(h.pub.Pairs()) == 1 },
		"no transcript pair published")

	if got := h.sttp.TranscribeCalls[0].Language; got != types.AutoDetect {
		t.Errorf("stt language hint = %q, want %q", got, types.AutoDetect)
	}
	if got := h.pub.Pairs()[0].SourceLanguage; got != "French" {
		t.Errorf("SourceLanguage = %q, want French", got)
	}
	if got := h.trp.TranslateCalls[0].SourceLanguage; got != "French" {
		t.Errorf("translate source = %q, want French", got)
	}
}

func TestSession_NoSpeechDroppedSilently(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)
	h.sttp.Default = sttmock.Response{Err: fault.ErrNoSpeech}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return h.sess.Stats().UtterancesDropped == 1 },
		"utterance not counted as dropped")

	if got := len(h.pub.Pairs()); got != 0 {
		t.Errorf("published %d pairs, want 0", got)
	}
	if got := len(h.sched.Enqueued()); got != 0 {
		t.Errorf("enqueued %d clips, want 0", got)
	}
	if got := h.trp.Calls(); got != 0 {
		t.Errorf("translation provider called %d times, want 0", got)
	}
}

func TestSession_TransientFailureRetriedOnce(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)
	h.sttp.Queue = []sttmock.Response{
		{Err: fault.Transient(errors.New("rate limited"))},
	}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return len(h.pub.Pairs()) == 1 },
		"no transcript pair published after retry")

	if got := h.sttp.Calls(); got != 2 {
		t.Errorf("stt called %d times, want 2", got)
	}
}

func TestSession_FatalFailureNotRetried(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)
	h.sttp.Queue = []sttmock.Response{
		{Err: fault.Fatal(errors.New("bad credentials"))},
	}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return h.sess.Stats().UtterancesFailed == 1 },
		"utterance not counted as failed")

	if got := h.sttp.Calls(); got != 1 {
		t.Errorf("stt called %d times, want 1", got)
	}
	if got := len(h.pub.Pairs()); got != 0 {
		t.Errorf("published %d pairs, want 0", got)
	}
}

func TestSession_SynthesisFailureStillPublishes(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)
	h.ttsp.Default = ttsmock.Response{Err: fault.Fatal(errors.New("unknown voice"))}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return len(h.pub.Pairs()) == 1 },
		"transcript pair suppressed by synthesis failure")

	if got := len(h.sched.Enqueued()); got != 0 {
		t.Errorf("enqueued %d clips, want 0", got)
	}
}

func TestSession_EmptyTranslationProducesNoClip(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)
	h.trp.Default = trmock.Response{Text: ""}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return len(h.pub.Pairs()) == 1 },
		"no transcript pair published")

	if got := h.pub.Pairs()[0].TranslatedText; got != "" {
		t.Errorf("TranslatedText = %q, want empty", got)
	}
	if got := h.ttsp.Calls(); got != 0 {
		t.Errorf("synthesis provider called %d times for empty translation, want 0", got)
	}
	if got := len(h.sched.Enqueued()); got != 0 {
		t.Errorf("enqueued %d clips, want 0", got)
	}
}

func TestSession_LeaveDuringPublishSkipsEnqueue(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)

	// The leave lands while the transcript is being published: after the
	// worker has won its sequence turn, before the clip reaches the
	// scheduler. EmitEvent dispatches synchronously, so the queue purge has
	// run by the time Publish returns and a late enqueue would escape it.
	h.pub.hook = func() {
		h.conn.EmitEvent(audio.Event{Type: audio.EventLeave, ParticipantID: "p1"})
	}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return h.sess.Stats().UtterancesPublished == 1 },
		"no transcript pair published")

	if got := len(h.sched.Enqueued()); got != 0 {
		t.Errorf("enqueued %d clips after leave, want 0", got)
	}
}

func TestSession_TranslationCacheHit(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)
	if err := h.mem.Cache().Put(context.Background(), "hello there", "English", "German", "aus dem cache"); err != nil {
		t.Fatalf("Cache.Put: %v", err)
	}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return len(h.pub.Pairs()) == 1 },
		"no transcript pair published")

	if got := h.pub.Pairs()[0].TranslatedText; got != "aus dem cache" {
		t.Errorf("TranslatedText = %q, want cached value", got)
	}
	if got := h.trp.Calls(); got != 0 {
		t.Errorf("translation provider called %d times, want 0", got)
	}
}

func TestSession_PublishesInSequenceOrder(t *testing.T) {
	in := make(chan audio.Frame, 256)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)

	// Texts are derived from the PCM's tone value so concurrent calls stay
	// deterministic; the first utterance's synthesis is slowed so later ones
	// finish their stages before it.
	h.sttp.TranscribeFunc = func(_ context.Context, req stt.Request) (stt.Result, error) {
		switch int16(binary.LittleEndian.Uint16(req.PCM[:2])) {
		case 8000:
			return stt.Result{Text: "first", Language: "en"}, nil
		case 12000:
			return stt.Result{Text: "second", Language: "en"}, nil
		default:
			return stt.Result{Text: "third", Language: "en"}, nil
		}
	}
	h.trp.TranslateFunc = func(_ context.Context, req translate.Request) (string, error) {
		return "T:" + req.Text, nil
	}
	h.ttsp.SynthesizeFunc = func(_ context.Context, req tts.Request) (types.SynthesizedClip, error) {
		if req.Text == "T:first" {
			time.Sleep(150 * time.Millisecond)
		}
		return ttsmock.Clip(10 * time.Millisecond), nil
	}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)
	speak(in, 12000)
	speak(in, 16000)
	close(in)

	waitFor(t, 10*time.Second, func() bool { return len(h.pub.Pairs()) == 3 },
		"not all pairs published")

	var texts []string
	var seqs []uint64
	for _, p := range h.pub.Pairs() {
		texts = append(texts, p.OriginalText)
		seqs = append(seqs, p.Seq)
	}
	wantTexts := []string{"first", "second", "third"}
	for i := range wantTexts {
		if texts[i] != wantTexts[i] {
			t.Fatalf("publish order = %v, want %v", texts, wantTexts)
		}
		if seqs[i] != uint64(i+1) {
			t.Fatalf("publish seqs = %v, want 1..3", seqs)
		}
	}

	clips := h.sched.Enqueued()
	if len(clips) != 3 {
		t.Fatalf("enqueued %d clips, want 3", len(clips))
	}
	for i, c := range clips {
		if c.Seq != uint64(i+1) {
			t.Fatalf("clip seqs out of order: %d at position %d", c.Seq, i)
		}
	}
}

func TestSession_LeavePurgesQueuedPlayback(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)

	// Synthesis blocks until the participant's context is cancelled.
	h.ttsp.SynthesizeFunc = func(ctx context.Context, _ tts.Request) (types.SynthesizedClip, error) {
		<-ctx.Done()
		return types.SynthesizedClip{}, ctx.Err()
	}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)

	waitFor(t, 5*time.Second, func() bool { return h.ttsp.Calls() == 1 },
		"synthesis never started")

	h.conn.EmitEvent(audio.Event{Type: audio.EventLeave, ParticipantID: "p1"})
	close(in)

	waitFor(t, 5*time.Second, func() bool {
		return h.sess.Stats().UtterancesFailed == 1
	}, "in-flight utterance not cancelled by leave")

	found := false
	for _, id := range h.sched.DropParticipantCalls {
		if id == "p1" {
			found = true
		}
	}
	if !found {
		t.Error("scheduler was not purged for the leaving participant")
	}
	if got := len(h.pub.Pairs()); got != 0 {
		t.Errorf("published %d pairs after leave, want 0", got)
	}
	if got := len(h.sched.Enqueued()); got != 0 {
		t.Errorf("enqueued %d clips after leave, want 0", got)
	}
}

func TestSession_JoinEventAttachesNewStream(t *testing.T) {
	h := newHarness(t, nil)
	h.setPrefs(t, "p2", "", "English", "German", 1)

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	in := make(chan audio.Frame, 64)
	h.conn.InputStreamsResult = map[string]<-chan audio.Frame{"p2": in}
	h.conn.EmitEvent(audio.Event{Type: audio.EventJoin, ParticipantID: "p2", DisplayName: "Bob"})

	speak(in, 8000)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return len(h.pub.Pairs()) == 1 },
		"no transcript pair from late joiner")

	cfg, err := h.mem.Prefs().Get(context.Background(), "p2")
	if err != nil {
		t.Fatalf("Prefs.Get: %v", err)
	}
	if cfg.DisplayName != "Bob" {
		t.Errorf("DisplayName = %q, want Bob", cfg.DisplayName)
	}
}

func TestSession_ConfigChangeDoesNotAffectInFlightUtterance(t *testing.T) {
	in := make(chan audio.Frame, 64)
	h := newHarness(t, map[string]chan audio.Frame{"p1": in})
	h.setPrefs(t, "p1", "Alice", "English", "German", 1)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	h.sttp.TranscribeFunc = func(_ context.Context, _ stt.Request) (stt.Result, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return stt.Result{Text: "hi", Language: "en"}, nil
	}

	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speak(in, 8000)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("transcription never started")
	}

	// The config snapshot was taken at utterance creation, so this change
	// must not apply to the in-flight utterance.
	h.setPrefs(t, "p1", "Alice", "English", "French", 1)
	close(release)
	close(in)

	waitFor(t, 5*time.Second, func() bool { return len(h.pub.Pairs()) == 1 },
		"no transcript pair published")

	if got := h.pub.Pairs()[0].TargetLanguage; got != "German" {
		t.Errorf("TargetLanguage = %q, want German (snapshot at creation)", got)
	}
}

func TestSession_StartTwiceFails(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.sess.Start(); err == nil {
		t.Fatal("second Start succeeded, want error")
	}
}

func TestNew_MissingDependencies(t *testing.T) {
	_, err := relay.New(&audiomock.Connection{}, relay.Config{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}
