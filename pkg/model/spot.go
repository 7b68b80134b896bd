package model

// Spot is the slice of a listing the booking engine cares about.
type Spot struct {
	ID      string `json:"id" bson:"_id,omitempty"`
	OwnerID string `json:"ownerId" bson:"owner_id"`
}
