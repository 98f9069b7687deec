package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Comment is embedded in its post.
type Comment struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Post is a board submission carrying its comments and the ids of users who liked or
// scrapped it.
type Post struct {
	ID        uint                         `gorm:"primaryKey" json:"id"`
	BoardID   uint                         `gorm:"not null;index:idx_posts_board_created,priority:1" json:"board_id"`
	UserID    uint                         `gorm:"not null;index" json:"user_id"`
	Title     string                       `gorm:"size:255;not null" json:"title"`
	Content   string                       `gorm:"type:text;not null" json:"content"`
	Comments  datatypes.JSONSlice[Comment] `gorm:"not null" json:"comments"`
	Likes     datatypes.JSONSlice[uint]    `gorm:"not null" json:"likes"`
	Scraps    datatypes.JSONSlice[uint]    `gorm:"not null" json:"scraps"`
	CreatedAt time.Time                    `gorm:"index:idx_posts_board_created,priority:2" json:"created_at"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// BeforeSave keeps JSON list columns as arrays, never JSON null.
func (p *Post) BeforeSave(*gorm.DB) error {
	p.Comments = nonNil(p.Comments)
	p.Likes = nonNil(p.Likes)
	p.Scraps = nonNil(p.Scraps)
	return nil
}

// FindComment returns the index of the comment with id, or -1.
func (p *Post) FindComment(id string) int {
	for i, c := range p.Comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// CommentIDs lists the ids of the embedded comments.
func (p *Post) CommentIDs() []string {
	ids := make([]string, 0, len(p.Comments))
	for _, c := range p.Comments {
		ids = append(ids, c.ID)
	}
	return ids
}

// CommentIDsBy lists the ids of comments written by userID.
func (p *Post) CommentIDsBy(userID uint) []string {
	var ids []string
	for _, c := range p.Comments {
		if c.UserID == userID {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
