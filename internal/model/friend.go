package model

import "time"

// FriendStatus is the lifecycle state of a FriendRequest.
//
//	pending ──respond──▶ accepted   (terminal)
//	        └─respond──▶ declined   (terminal)
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendDeclined FriendStatus = "declined"
)

// Valid reports whether s is one of the known statuses.
func (s FriendStatus) Valid() bool {
	switch s {
	case FriendPending, FriendAccepted, FriendDeclined:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s FriendStatus) Terminal() bool {
	return s == FriendAccepted || s == FriendDeclined
}

// FriendRequest is a directed edge from Requester to Addressee.
// Friendship itself is never stored: two users are friends iff an accepted
// request exists between them in either direction.
type FriendRequest struct {
	ID          string       `json:"id"          db:"id"`
	RequesterID string       `json:"requesterId" db:"requester_id"`
	AddresseeID string       `json:"addresseeId" db:"addressee_id"`
	Status      FriendStatus `json:"status"      db:"status"`
	CreatedAt   time.Time    `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt"   db:"updated_at"`
}

// Counterpart returns the other side of the request as seen by userID.
func (r FriendRequest) Counterpart(userID string) string {
	if r.RequesterID == userID {
		return r.AddresseeID
	}
	return r.RequesterID
}

// PairKey returns the canonical unordered pair for two user ids, lowest first.
// The store keys its uniqueness constraint on this pair.
func PairKey(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Relationship is a FriendRequest hydrated with the counterpart's profile.
type Relationship struct {
	Request FriendRequest `json:"request"`
	Profile Profile       `json:"profile"`
}

// Relationships holds the three disjoint views of a user's friend graph.
type Relationships struct {
	Friends  []Relationship `json:"friends"`
	Outgoing []Relationship `json:"outgoing"`
	Incoming []Relationship `json:"incoming"`
}
