package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent producer goroutine leaks when a consumer stops caring
// about a streaming channel (e.g., a detached participant's input stream).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
