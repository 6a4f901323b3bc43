package domain

// TokenCounter estimates how many tokens a message occupies in a model's
// context window. Estimates are for budget math only.
type TokenCounter interface {
	CountText(text string) int
	CountMessage(m Message) int
}
