package model

import "time"

// SpotLock serializes booking writes for one spot. ID is the spot id and Owner is the
// token of the holder, so only the holder can release it.
type SpotLock struct {
	ID        string    `bson:"_id" json:"id"`
	Owner     string    `bson:"owner" json:"owner"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
