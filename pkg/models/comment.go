package models

import "time"

// Comment is a project comment; ParentCommentID is set for replies
type Comment struct {
	ID              string    `json:"id" db:"id"`
	ProjectID       string    `json:"project_id" db:"project_id"`
	UserID          string    `json:"user_id" db:"user_id"`
	ParentCommentID *string   `json:"parent_comment_id,omitempty" db:"parent_comment_id"`
	Body            string    `json:"body" db:"body"`
	IsPinned        bool      `json:"is_pinned" db:"is_pinned"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// IsReply reports whether the comment has a parent.
func (c *Comment) IsReply() bool {
	return c.ParentCommentID != nil
}

// CommentThread is a top-level comment with its ordered replies
type CommentThread struct {
	Comment
	Replies []Comment `json:"replies"`
}
