package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserType is the sign-in method of an account.
type UserType string

const (
	UserTypeKakao  UserType = "KAKAO"
	UserTypeNaver  UserType = "NAVER"
	UserTypeApple  UserType = "APPLE"
	UserTypeDirect UserType = "USER"
)

// Valid reports whether t is a known account type.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeKakao, UserTypeNaver, UserTypeApple, UserTypeDirect:
		return true
	}
	return false
}

// IsSocial reports whether t signs in through an external provider.
func (t UserType) IsSocial() bool {
	return t.Valid() && t != UserTypeDirect
}

// History is a recorded route or place lookup.
type History struct {
	ID           string    `json:"id"`
	SourceTitle  string    `json:"source_title"`
	DestTitle    string    `json:"dest_title"`
	ContentID    string    `json:"content_id"`
	ContentTitle string    `json:"content_title"`
	ContentType  string    `json:"content_type"`
	TimeTaken    int       `json:"time_taken"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is an account plus the lists mirroring its community activity.
type User struct {
	ID                uint     `gorm:"primaryKey" json:"id"`
	Username          string   `gorm:"size:255;uniqueIndex;not null" json:"username"`
	Password          string   `gorm:"not null" json:"-"`
	Name              string   `gorm:"size:100" json:"name"`
	UserType          UserType `gorm:"size:10;not null" json:"user_type"`
	IsVerified        bool     `gorm:"not null;default:false" json:"is_verified"`
	VerificationToken string   `gorm:"size:64" json:"-"`

	Favorites datatypes.JSONSlice[uint]    `gorm:"not null" json:"favorites"`
	Posts     datatypes.JSONSlice[uint]    `gorm:"not null" json:"posts"`
	Comments  datatypes.JSONSlice[string]  `gorm:"not null" json:"comments"`
	Likes     datatypes.JSONSlice[uint]    `gorm:"not null" json:"likes"`
	Scraps    datatypes.JSONSlice[uint]    `gorm:"not null" json:"scraps"`
	Reports   datatypes.JSONSlice[uint]    `gorm:"not null" json:"reports"`
	Histories datatypes.JSONSlice[History] `gorm:"not null" json:"histories"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeSave keeps JSON list columns as arrays, never JSON null.
func (u *User) BeforeSave(*gorm.DB) error {
	u.Favorites = nonNil(u.Favorites)
	u.Posts = nonNil(u.Posts)
	u.Comments = nonNil(u.Comments)
	u.Likes = nonNil(u.Likes)
	u.Scraps = nonNil(u.Scraps)
	u.Reports = nonNil(u.Reports)
	u.Histories = nonNil(u.Histories)
	return nil
}

// HasReported reports whether the user muted authorID.
func (u *User) HasReported(authorID uint) bool {
	return SetContains(u.Reports, authorID)
}
