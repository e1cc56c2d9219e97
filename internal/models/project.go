package models

import "time"

// Project represents a registered project whose tickets live under Path.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"` // short uppercase code, e.g. "MDT"
	Path      string    `json:"path"` // absolute path to the project checkout
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
