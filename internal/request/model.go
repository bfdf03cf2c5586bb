// Package request provides models and repositories for marketplace requests:
// posts describing an item a user wants to buy, tagged with categories and
// collecting submissions from the community.
package request

import (
	"errors"
	"time"
)

// Common errors for request operations.
var (
	ErrRequestNotFound  = errors.New("request not found")
	ErrCategoryNotFound = errors.New("category not found")
)

// Status is the lifecycle state of a request.
type Status string

// Request lifecycle states. Only open requests are feed candidates.
const (
	StatusOpen      Status = "open"
	StatusFulfilled Status = "fulfilled"
	StatusClosed    Status = "closed"
)

// Category is a topic a request can be tagged with. Identity is by ID.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// PriceLock caps the price the requester is willing to pay.
type PriceLock struct {
	MaxPriceCents int64  `json:"max_price_cents"`
	Currency      string `json:"currency"`
}

// PreferenceNote is a labelled free-form hint from the requester,
// e.g. {Label: "Color", Note: "anything but beige"}.
type PreferenceNote struct {
	Label string `json:"label"`
	Note  string `json:"note,omitempty"`
}

// Request represents a user's post describing an item they want to buy.
type Request struct {
	ID          string `json:"id"`
	AuthorID    string `json:"author_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`

	Categories      []Category `json:"categories,omitempty"`
	SubmissionCount int        `json:"submission_count"`

	// Structured buying preferences
	PriceLock   *PriceLock       `json:"price_lock,omitempty"`
	ExactItem   bool             `json:"exact_item"`
	Preferences []PreferenceNote `json:"preferences,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the request still accepts submissions.
func (r *Request) IsOpen() bool {
	return r.Status == StatusOpen
}

// CategoryIDs returns the IDs of the request's categories in tag order.
func (r *Request) CategoryIDs() []string {
	ids := make([]string, len(r.Categories))
	for i, c := range r.Categories {
		ids[i] = c.ID
	}
	return ids
}

// clone returns a copy of the request whose slices do not alias the original.
func (r *Request) clone() Request {
	c := *r
	if r.Categories != nil {
		c.Categories = append([]Category(nil), r.Categories...)
	}
	if r.Preferences != nil {
		c.Preferences = append([]PreferenceNote(nil), r.Preferences...)
	}
	if r.PriceLock != nil {
		lock := *r.PriceLock
		c.PriceLock = &lock
	}
	return c
}
