package domain

import "strings"

// Asset identifies a tradable stock. Names are canonicalized to upper case
// at construction and the value is never mutated afterwards.
type Asset struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NewAsset builds an Asset with a canonical upper-case name.
func NewAsset(id int64, name string) Asset {
	return Asset{ID: id, Name: strings.ToUpper(name)}
}

// User identifies a platform account holder. The house account (the exchange
// itself) is a regular User seeded from configuration.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
