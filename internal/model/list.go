package model

import "time"

// List is a named, user-owned collection of restaurants.
//
// RestaurantCount is derived when the list is read; it is not a column.
type List struct {
	ID              string    `json:"id"              db:"id"`
	CreatorID       string    `json:"creatorId"       db:"creator_id"`
	Title           string    `json:"title"           db:"title"`
	Description     string    `json:"description"     db:"description"`
	RestaurantCount int       `json:"restaurantCount" db:"restaurant_count"`
	CreatedAt       time.Time `json:"createdAt"       db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt"       db:"updated_at"`
}

// Restaurant is a single establishment entry belonging to one List.
//
// Rating is a pointer: "no rating" and "rated 0" are different things to the
// user, even though filtering and sorting treat a missing rating as 0.
type Restaurant struct {
	ID          string    `json:"id"          db:"id"`
	ListID      string    `json:"listId"      db:"list_id"`
	CreatedBy   string    `json:"createdBy"   db:"created_by"`
	Name        string    `json:"name"        db:"name"`
	Rating      *float64  `json:"rating"      db:"rating"`
	Tags        Tags      `json:"tags"        db:"tags"`
	Address     string    `json:"address"     db:"address"`
	Hours       string    `json:"hours"       db:"hours"`
	Description string    `json:"description" db:"description"`
	ImageURL    string    `json:"imageUrl"    db:"image_url"`
	ImagePath   string    `json:"-"           db:"image_path"`
	ImageAlt    string    `json:"imageAlt"    db:"image_alt"`
	Website     string    `json:"website"     db:"website"`
	MapsLink    string    `json:"mapsLink"    db:"maps_link"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}

// RatingOrZero treats a missing rating as 0.
func (r Restaurant) RatingOrZero() float64 {
	if r.Rating == nil {
		return 0
	}
	return *r.Rating
}

// Comment is an immutable note left on a restaurant.
type Comment struct {
	ID           string    `json:"id"           db:"id"`
	RestaurantID string    `json:"restaurantId" db:"restaurant_id"`
	AuthorID     string    `json:"authorId"     db:"author_id"`
	Content      string    `json:"content"      db:"content"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	Author       *Profile  `json:"author,omitempty" db:"-"`
}
