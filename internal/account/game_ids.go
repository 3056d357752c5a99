package account

import (
	"errors"
	"math/rand/v2"
	"strings"
)

const gameIDLength = 4

// NewGameID returns a random four-letter id such as "QZKA".
func NewGameID() string {
	code := make([]byte, gameIDLength)
	for i := range code {
		code[i] = 'A' + byte(rand.IntN(26))
	}
	return string(code)
}

func ValidateGameID(id string) error {
	if len(id) != gameIDLength {
		return errors.New("game id must be exactly 4 letters")
	}
	for _, ch := range strings.ToUpper(id) {
		if ch < 'A' || ch > 'Z' {
			return errors.New("game id must contain only letters A-Z")
		}
	}
	return nil
}

func NormalizeGameID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
