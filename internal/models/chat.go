package models

import "time"

// Conversation is a thread between one buyer and one seller about one robot listing.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	RobotID   string    `db:"robot_id" json:"robot_id"`
	BuyerID   string    `db:"buyer_id" json:"buyer_id"`
	SellerID  string    `db:"seller_id" json:"seller_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.BuyerID == userID || c.SellerID == userID)
}

// CounterpartyOf returns the participant that is not userID.
func (c Conversation) CounterpartyOf(userID string) string {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}
