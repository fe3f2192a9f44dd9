// Package models defines the core data structures for users, cards and
// stored website credentials.
package models

import (
	"encoding/json"
	"time"
)

// User is the identity record owned by the external identity provider.
type User struct {
	// ID is the opaque identifier issued by the identity provider.
	ID string `json:"id"`
	// Username is the login name, if the provider has one.
	Username string `json:"username,omitempty"`
	// Email is the primary email address, if the provider has one.
	Email string `json:"email,omitempty"`
	// PrivateMetadata is the provider-side metadata document. The record
	// lists live under its "cards" and "passwords" keys.
	PrivateMetadata Metadata `json:"-"`
}

// Metadata is a top-level JSON object whose values are kept undecoded, so
// keys this service does not own survive a round trip untouched.
type Metadata map[string]json.RawMessage

// Section names one of the record lists inside the metadata blob.
type Section string

const (
	// SectionCards is the metadata key holding card records.
	SectionCards Section = "cards"
	// SectionPasswords is the metadata key holding website credentials.
	SectionPasswords Section = "passwords"
)

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	return s == SectionCards || s == SectionPasswords
}

// Card is a stored payment card.
type Card struct {
	// ID is generated at append time and never changes.
	ID string `json:"id"`
	// CardName is an optional user label such as "Personal Visa".
	CardName string `json:"cardName,omitempty"`
	// CardNo is the card number as a digit string.
	CardNo string `json:"cardNo"`
	// ExpiryDate is in MM/YY form.
	ExpiryDate string `json:"expiryDate"`
	// CVV holds the security code. Stored sealed when a data key is configured.
	CVV string `json:"cvv"`
	// HolderName is the name printed on the card.
	HolderName string `json:"holderName,omitempty"`
	// CreatedAt is stamped when the card is appended.
	CreatedAt time.Time `json:"createdAt"`
}

// Password is a stored website credential.
type Password struct {
	ID         string `json:"id"`
	WebsiteURL string `json:"websiteUrl"`
	Username   string `json:"username"`
	// Password holds the secret. Stored sealed when a data key is configured.
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
}

// Blob is the per-user record container. Order is insertion order.
type Blob struct {
	Cards     []Card     `json:"cards"`
	Passwords []Password `json:"passwords"`
}

// StoredBlob is the record container as the provider holds it: one
// undecoded JSON element per record, in insertion order. Appends go through
// it so that existing elements are written back byte for byte.
type StoredBlob struct {
	Cards     []json.RawMessage
	Passwords []json.RawMessage
}

// CardFields are the user supplied values for a new card.
type CardFields struct {
	CardName   string `json:"cardName"`
	CardNo     string `json:"cardNo"`
	ExpiryDate string `json:"expiryDate"`
	CVV        string `json:"cvv"`
	HolderName string `json:"holderName"`
}

// PasswordFields are the user supplied values for a new website credential.
type PasswordFields struct {
	WebsiteURL string `json:"websiteUrl"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}
