package chorus

// Usage tracks token consumption for one channel.
//
// InputTokens counts non-cached input only. Backends normalize their
// API-specific fields to this and clamp derived values to zero.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
}

// Total returns all tokens consumed.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens
}

// UsageReporter is implemented by text streams that learn their token usage.
// Usage is only meaningful once Next has returned io.EOF.
type UsageReporter interface {
	Usage() Usage
}
