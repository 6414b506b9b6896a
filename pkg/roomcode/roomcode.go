package roomcode

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Length of every room code handed to participants.
const Length = 6

// alphabet leaves out 0/O and 1/I so codes survive being read out loud.
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// Generate returns a new 6-character room code. Uniqueness among active polls
// is enforced by the store, not here; callers retry on collision.
func Generate() (string, error) {
	return gonanoid.Generate(alphabet, Length)
}

// Valid reports whether s has the shape of a room code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		ok := false
		for _, a := range alphabet {
			if r == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
