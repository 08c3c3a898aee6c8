package orm

import (
	"time"
)

// Image is one logical image, keyed by the content hash of its (possibly
// transcoded) file bytes. The hash is immutable once assigned; re-uploading
// identical content lands on the same row.
type Image struct {
	Hash        string `gorm:"primaryKey;size:64;not null" json:"hash"`
	Alt         string `gorm:"size:255"                    json:"alt,omitempty"`
	Description string `gorm:"size:2000"                   json:"description,omitempty"`

	// UnlabeledSince is set when the image is created without labels and
	// cleared once a label is attached. The retention sweep uses it to find
	// abandoned uploads.
	UnlabeledSince *time.Time `gorm:"index" json:"unlabeledSince,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Child rows with cascading deletion
	Variants []ImageVariant `gorm:"foreignKey:Hash;references:Hash;constraint:OnDelete:CASCADE" json:"variants,omitempty"`
	Labels   []ImageLabel   `gorm:"foreignKey:Hash;references:Hash;constraint:OnDelete:CASCADE" json:"labels,omitempty"`
}

// ImageVariant is one rendered file on disk: a specific size and format of
// its owning image.
type ImageVariant struct {
	Hash    string `gorm:"primaryKey;size:64;not null"  json:"hash"`
	Src     string `gorm:"primaryKey;size:512;not null" json:"src"`
	SizeTag string `gorm:"size:16;not null"             json:"sizeTag"`
	Width   int    `gorm:"not null"                     json:"width"`
	Height  int    `gorm:"not null"                     json:"height"`
}

// ImageLabel is a named tag attached to an image, with positional ordering
// within the label.
type ImageLabel struct {
	Hash     string `gorm:"primaryKey;size:64;not null"  json:"hash"`
	Name     string `gorm:"primaryKey;size:255;not null" json:"name"`
	Position int    `gorm:"not null;default:0"           json:"position"`
}

// EntityImage associates a domain entity with an image. The usage scanner
// reads these to decide whether an image is still referenced.
type EntityImage struct {
	EntityID string `gorm:"primaryKey;size:255;not null" json:"entityId"`
	Hash     string `gorm:"primaryKey;size:64;not null"  json:"hash"`
}
