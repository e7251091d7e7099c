package relay

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/voxlate/internal/observe"
	"github.com/MrWong99/voxlate/internal/resilience"
	"github.com/MrWong99/voxlate/pkg/provider/translate"
	"github.com/MrWong99/voxlate/pkg/store"
)

// cachedTranslator fronts the translation provider with the session's
// translation cache and collapses concurrent identical requests into a single
// backend call. Repeated short utterances ("yes", "okay") are common in voice
// chat, and several pipelines often hit the same phrase at once.
type cachedTranslator struct {
	provider translate.Provider
	cache    store.TranslationCache // nil disables caching
	metrics  *observe.Metrics
	retry    resilience.RetryConfig

	group singleflight.Group
}

// translate returns text rendered in targetLang. Cache errors are treated as
// misses; a cache failure never fails the utterance.
//
// Concurrent callers with the same key share one provider call. The shared
// call runs under the first caller's context, so a waiter can see that
// caller's cancellation as its own error; the utterance is then skipped like
// any other translation failure.
func (t *cachedTranslator) translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if t.cache != nil {
		if translated, ok, err := t.cache.Get(ctx, text, sourceLang, targetLang); err == nil && ok {
			t.metrics.RecordCacheLookup(ctx, true)
			return translated, nil
		}
		t.metrics.RecordCacheLookup(ctx, false)
	}

	key := strings.Join([]string{sourceLang, targetLang, text}, "\x1f")
	v, err, _ := t.group.Do(key, func() (any, error) {
		translated, err := resilience.Retry(ctx, t.retry, func(ctx context.Context) (string, error) {
			return t.provider.Translate(ctx, translate.Request{
				Text:           text,
				SourceLanguage: sourceLang,
				TargetLanguage: targetLang,
			})
		})
		if err != nil {
			return "", err
		}
		if t.cache != nil {
			// Best effort; a failed put only costs a future backend call.
			_ = t.cache.Put(ctx, text, sourceLang, targetLang, translated)
		}
		return translated, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
