// Package anyllm implements translate.Provider on top of
// github.com/mozilla-ai/any-llm-go, a unified multi-provider chat-completion
// interface that supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek,
// Mistral, Groq, and more.
//
// The default backend is Mistral with a small, low-latency model — fast
// enough to sit in the middle of a live voice exchange:
//
//	p, err := anyllm.NewMistral("", anyllmlib.WithAPIKey("..."))
//
// Any other supported backend can be selected by name:
//
//	p, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/translate"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "mistral-small-latest"

// translationTemperature keeps the model close to a literal translation
// instead of a creative paraphrase.
const translationTemperature = 0.2

// Provider implements translate.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ translate.Provider = (*Provider)(nil)

// New creates a Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile". An empty model falls back to
// DefaultModel.
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the backend falls
// back to its environment variable (MISTRAL_API_KEY, OPENAI_API_KEY, ...).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model}, nil
}

// NewMistral creates a Provider backed by Mistral AI, the default translation
// backend. Without options, it reads the MISTRAL_API_KEY environment variable.
func NewMistral(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("mistral", model, opts...)
}

// NewOpenAI creates a Provider backed by OpenAI.
// Without options, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("openai", model, opts...)
}

// NewAnthropic creates a Provider backed by Anthropic.
// Without options, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", model, opts...)
}

// NewGemini creates a Provider backed by Google Gemini.
// Without options, it reads the GEMINI_API_KEY or GOOGLE_API_KEY environment variable.
func NewGemini(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("gemini", model, opts...)
}

// NewOllama creates a Provider backed by Ollama, for fully offline
// translation. Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// NewGroq creates a Provider backed by Groq.
// Without options, it reads the GROQ_API_KEY environment variable.
func NewGroq(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("groq", model, opts...)
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", nil
	}
	if req.TargetLanguage == "" {
		return "", fault.Fatal(fmt.Errorf("anyllm: target language must not be empty"))
	}

	temp := translationTemperature
	params := anyllmlib.CompletionParams{
		Model:       p.model,
		Temperature: &temp,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt(req.SourceLanguage, req.TargetLanguage)},
			{Role: "user", Content: req.Text},
		},
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("anyllm: completion: %w", err)
		}
		// The backend hides HTTP status codes behind opaque errors. Rate
		// limits and upstream hiccups dominate chat-completion failures, so
		// an unclassifiable error gets the single bounded retry; a
		// misclassified auth failure costs one duplicate round trip.
		return "", fault.Transient(fmt.Errorf("anyllm: completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fault.Transient(fmt.Errorf("anyllm: empty choices in response"))
	}

	out := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if out == "" {
		return "", fault.Transient(fmt.Errorf("anyllm: model returned an empty translation"))
	}
	return out, nil
}

// systemPrompt builds the translator instruction. A missing source language
// (auto-detect that resolved nothing) drops the from-clause and lets the
// model infer it.
func systemPrompt(source, target string) string {
	if source == "" {
		return fmt.Sprintf("You are a translator. Translate the following text to %s. Only respond with the translated text, nothing else.", target)
	}
	return fmt.Sprintf("You are a translator. Translate the following text from %s to %s. Only respond with the translated text, nothing else.", source, target)
}
