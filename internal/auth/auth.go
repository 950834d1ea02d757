// Package auth decides whether the signed-in account may sync a game.
package auth

import (
	"errors"
	"fmt"

	"github.com/schaermu/gamerules/internal/speedrun"
)

var (
	// ErrNotModerator is returned when the account has no moderation record
	// for the game
	ErrNotModerator = errors.New("account does not moderate this game")
	// ErrVerifierOnly is returned when the account is only a verifier
	ErrVerifierOnly = errors.New("account must be Moderator or Super Moderator")
	// ErrNotSignedIn is returned when the session carries no account
	ErrNotSignedIn = errors.New("session is not signed in")
)

// Grant is the privilege an account holds on one game
type Grant struct {
	AccountID string
	GameID    string
	Level     speedrun.ModeratorLevel
}

// CanAttribute reports whether the account may read the audit log, which
// is needed to credit the editors of a change.
func (g Grant) CanAttribute() bool {
	return g.Level >= speedrun.LevelSuperModerator
}

// Authorize checks the session's moderation record for gameID
func Authorize(session *speedrun.Session, gameID string) (Grant, error) {
	if session == nil || !session.SignedIn || session.User == nil {
		return Grant{}, ErrNotSignedIn
	}

	for _, m := range session.GameModeratorList {
		if m.GameID != gameID || m.UserID != session.User.ID {
			continue
		}
		if m.Level <= speedrun.LevelVerifier {
			return Grant{}, fmt.Errorf("%w: %s is a %s of %s", ErrVerifierOnly, session.User.Name, m.Level, gameID)
		}
		return Grant{AccountID: session.User.ID, GameID: gameID, Level: m.Level}, nil
	}

	return Grant{}, fmt.Errorf("%w: %s has no moderation record for %s", ErrNotModerator, session.User.Name, gameID)
}
