package models

import "time"

// RefreshToken is the persisted record behind one issued refresh token.
//
// ID equals the tokenId claim embedded in the signed token. TokenFamily is
// shared by every token descending from one login through rotations. Records
// are only ever flipped to Revoked, never deleted.
type RefreshToken struct {
	ID          string
	TokenHash   string
	UserID      string
	TokenFamily string
	Revoked     bool
	CreatedAt   time.Time
}
