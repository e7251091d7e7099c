package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/translate"
	translatemock "github.com/MrWong99/voxlate/pkg/provider/translate/mock"
)

func TestTranslateFallback_PrimarySuccess(t *testing.T) {
	primary := &translatemock.Provider{
		Default: translatemock.Response{Text: "Hallo Welt"},
	}
	secondary := &translatemock.Provider{}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Translate(context.Background(), translate.Request{
		Text:           "Hello world",
		SourceLanguage: "English",
		TargetLanguage: "German",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hallo Welt" {
		t.Fatalf("Translate = %q, want Hallo Welt", got)
	}
	if secondary.Calls() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.Calls())
	}
}

func TestTranslateFallback_PrimaryFailsOver(t *testing.T) {
	primary := &translatemock.Provider{
		Default: translatemock.Response{Err: fault.Transient(errors.New("quota"))},
	}
	secondary := &translatemock.Provider{
		Default: translatemock.Response{Text: "Bonjour"},
	}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Translate(context.Background(), translate.Request{
		Text:           "Hello",
		SourceLanguage: "English",
		TargetLanguage: "French",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Bonjour" {
		t.Fatalf("Translate = %q, want Bonjour", got)
	}
}

func TestTranslateFallback_AllFail(t *testing.T) {
	primary := &translatemock.Provider{Default: translatemock.Response{Err: errors.New("down")}}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := fb.Translate(context.Background(), translate.Request{Text: "x", TargetLanguage: "German"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
