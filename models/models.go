package models

import "github.com/jinzhu/gorm"

type User struct {
	gorm.Model
	Username string    `gorm:"unique"`
	Posts    []Post    `gorm:"foreignkey:UserID"`
	Comments []Comment `gorm:"foreignkey:UserID"`
}

type Post struct {
	gorm.Model
	Slug             string `gorm:"unique_index;not null"`
	Title            string
	CommentsDisabled bool
	UserID           uint
	Comments         []Comment `gorm:"foreignkey:PostID"`
}

type Comment struct {
	gorm.Model
	Content  string `gorm:"size:500"`
	PostID   uint   `gorm:"index"`
	UserID   uint
	ParentID *uint     `gorm:"index"`
	Children []Comment `gorm:"foreignkey:ParentID"`
}

// CommentVote is one user's +1 or -1 on a comment. Retracting deletes the row.
type CommentVote struct {
	ID        uint `gorm:"primary_key"`
	CommentID uint `gorm:"unique_index:idx_comment_vote_user"`
	UserID    uint `gorm:"unique_index:idx_comment_vote_user"`
	Value     int
}

// All lists the models in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &Post{}, &Comment{}, &CommentVote{}}
}
