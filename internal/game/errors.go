package game

import "errors"

// QuotaMessage is shown to a player who has used up today's games.
const QuotaMessage = "You've used all your daily games! Come back tomorrow for more leaf collecting! 🍃"

var (
	// ErrQuotaExceeded is returned when the player has no games left today.
	ErrQuotaExceeded = errors.New("daily game limit reached")
	// ErrSessionNotFound is returned when the player has no stored session.
	ErrSessionNotFound = errors.New("no active game session found")
	// ErrLeafNotFound is returned for a leaf id absent from the session.
	ErrLeafNotFound = errors.New("leaf not found")
	// ErrAlreadyCollected is returned for a second collect of the same leaf.
	ErrAlreadyCollected = errors.New("leaf already collected")
	// ErrInvalidInput is returned for malformed client input.
	ErrInvalidInput = errors.New("invalid input")
)
