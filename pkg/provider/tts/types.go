package tts

// Voice is one synthesis voice from a provider's catalogue.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Category groups voices the way the provider does ("premade", "cloned").
	Category string
}
