// Package idgen provides short, URL-safe correlation IDs backed by nanoid.
//
// Dispatch IDs tag every log line and span produced while one event is routed
// through middleware and handlers. Connection IDs tag one websocket session,
// so reconnects can be told apart in the logs.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DispatchPrefix   = "dsp-"
	ConnectionPrefix = "conn-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// Dispatch returns a new dispatch ID.
func Dispatch() string {
	return mustGenerate(DispatchPrefix)
}

// Connection returns a new connection ID.
func Connection() string {
	return mustGenerate(ConnectionPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// shortAlphabet avoids characters that are easy to mistype when an ID is
// copied into a chat command.
const shortAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// Short returns a six character ID for things users type back, such as
// reminder ids.
func Short() string {
	id, err := nanoid.Generate(shortAlphabet, 6)
	if err != nil {
		return "000000"
	}
	return id
}

// mustGenerate only fails if the system random source fails, in which case
// an ID is not worth aborting a dispatch over.
func mustGenerate(prefix string) string {
	id, err := GenerateWithPrefix(prefix)
	if err != nil {
		return prefix + "unknown"
	}
	return id
}
