// Package ids mints opaque, globally-unique identifiers for players
// and games.
package ids

import "github.com/google/uuid"

// PlayerID identifies one connected session, for the lifetime of that
// connection.
type PlayerID string

// GameID identifies one match, for the lifetime of that match.
type GameID string

// NewPlayerID mints a fresh player identifier.
func NewPlayerID() PlayerID {
	return PlayerID(uuid.New().String())
}

// NewGameID mints a fresh game identifier.
func NewGameID() GameID {
	return GameID(uuid.New().String())
}
