package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/repository"
	"promptflows/backend/pkg/models"
)

// MaxCommentLength is the longest accepted comment body, in runes.
const MaxCommentLength = 2000

// AddComment posts a comment on a project. parentID, when set, must name a
// top-level comment on the same project.
func (s *Service) AddComment(ctx context.Context, actorID, projectID, body string, parentID *string) (*models.Comment, error) {
	const op = "services.add_comment"
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation(op, apperr.CodeEmptyBody, "body", "comment body is required")
	}
	if utf8.RuneCountInString(body) > MaxCommentLength {
		return nil, apperr.Validation(op, apperr.CodeSchemaViolation, "body",
			fmt.Sprintf("comment body must be at most %d characters", MaxCommentLength))
	}
	if _, err := s.loadVisible(ctx, op, projectID, actorID); err != nil {
		return nil, err
	}

	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	if parentID != nil {
		parent, err := s.repo.GetComment(ctx, *parentID)
		if err != nil {
			return nil, storeErr(op, "parent comment", err)
		}
		if parent.ProjectID != projectID {
			return nil, apperr.Validation(op, apperr.CodeSchemaViolation, "parent_comment_id",
				"parent comment belongs to a different project")
		}
		if parent.IsReply() && s.cfg.RejectNestedReplies {
			return nil, apperr.Validation(op, apperr.CodeNestedReply, "parent_comment_id",
				"replies can only be made to top-level comments")
		}
	}

	comment := &models.Comment{
		ID:              s.idGen(),
		ProjectID:       projectID,
		UserID:          actorID,
		ParentCommentID: parentID,
		Body:            body,
		CreatedAt:       s.now(),
	}
	if err := s.repo.InsertComment(ctx, comment); err != nil {
		return nil, apperr.Internal(op, err)
	}
	s.syncRecount(ctx, projectID, models.CounterComments)
	return comment, nil
}

// DeleteComment removes a comment and its replies. Only the comment's
// author may delete it. comment_count is recounted afterwards.
func (s *Service) DeleteComment(ctx context.Context, actorID, commentID string) error {
	const op = "services.delete_comment"
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return storeErr(op, "comment", err)
	}
	if comment.UserID != actorID {
		return apperr.Unauthorized(op, "only the comment author can delete it")
	}
	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return storeErr(op, "comment", err)
	}
	s.syncRecount(ctx, comment.ProjectID, models.CounterComments)
	return nil
}

// loadPinTarget returns a comment and checks that actorID owns its project.
func (s *Service) loadPinTarget(ctx context.Context, op, actorID, commentID string) (*models.Comment, error) {
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return nil, storeErr(op, "comment", err)
	}
	project, err := s.repo.GetProject(ctx, comment.ProjectID)
	if err != nil {
		return nil, storeErr(op, "project", err)
	}
	if project.AuthorID != actorID {
		return nil, apperr.Unauthorized(op, "only the project author can pin comments")
	}
	return comment, nil
}

// PinComment makes commentID the project's only pinned comment. Every
// pinned comment is cleared first, so a failure between the two writes
// leaves nothing pinned rather than two.
func (s *Service) PinComment(ctx context.Context, actorID, commentID string) error {
	const op = "services.pin_comment"
	comment, err := s.loadPinTarget(ctx, op, actorID, commentID)
	if err != nil {
		return err
	}
	if comment.UserID == actorID && !s.cfg.AllowSelfPin {
		return apperr.Validation(op, apperr.CodeCannotPinOwnComment, "comment_id", "you cannot pin your own comment")
	}
	if err := s.repo.UnpinAll(ctx, comment.ProjectID); err != nil {
		return apperr.Internal(op, err)
	}
	if err := s.repo.SetPinned(ctx, commentID, true); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperr.Conflict(op, "", "another comment was pinned concurrently")
		}
		return storeErr(op, "comment", err)
	}
	return nil
}

// UnpinComment clears the pinned flag of commentID.
func (s *Service) UnpinComment(ctx context.Context, actorID, commentID string) error {
	const op = "services.unpin_comment"
	if _, err := s.loadPinTarget(ctx, op, actorID, commentID); err != nil {
		return err
	}
	if err := s.repo.SetPinned(ctx, commentID, false); err != nil {
		return storeErr(op, "comment", err)
	}
	return nil
}

// ListComments returns the project's comment tree. actorID may be empty
// for anonymous readers.
func (s *Service) ListComments(ctx context.Context, actorID, projectID string) ([]models.CommentThread, error) {
	const op = "services.list_comments"
	if _, err := s.loadVisible(ctx, op, projectID, actorID); err != nil {
		return nil, err
	}
	flat, err := s.repo.ListComments(ctx, projectID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return BuildThreads(flat), nil
}

// BuildThreads groups a flat comment set into top-level threads, pinned
// first and then oldest first. Replies are oldest first. A reply nested
// under another reply is attached to its top-level ancestor; replies whose
// ancestor is missing are dropped.
func BuildThreads(comments []models.Comment) []models.CommentThread {
	byID := make(map[string]models.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	threads := make([]models.CommentThread, 0, len(comments))
	replies := make(map[string][]models.Comment)
	for _, c := range comments {
		if !c.IsReply() {
			threads = append(threads, models.CommentThread{Comment: c})
			continue
		}
		if root, ok := topLevelAncestor(byID, c); ok {
			replies[root] = append(replies[root], c)
		}
	}

	slices.SortFunc(threads, func(a, b models.CommentThread) int {
		if a.IsPinned != b.IsPinned {
			if a.IsPinned {
				return -1
			}
			return 1
		}
		return byCreated(a.Comment, b.Comment)
	})
	for i := range threads {
		r := replies[threads[i].ID]
		slices.SortFunc(r, byCreated)
		threads[i].Replies = r
		if threads[i].Replies == nil {
			threads[i].Replies = []models.Comment{}
		}
	}
	return threads
}

func topLevelAncestor(byID map[string]models.Comment, c models.Comment) (string, bool) {
	seen := map[string]bool{c.ID: true}
	for c.ParentCommentID != nil {
		parent, ok := byID[*c.ParentCommentID]
		if !ok || seen[parent.ID] {
			return "", false
		}
		seen[parent.ID] = true
		c = parent
	}
	return c.ID, true
}

func byCreated(a, b models.Comment) int {
	return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
}
