package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/pkg/models"
)

func TestGetProjectBySlug(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	src := createPublished(t, svc, alice, "Flow", []string{"a", "b"}, "go")
	fork, err := svc.ForkProject(ctx, src.ID, bob)
	require.NoError(t, err)

	detail, err := svc.GetProjectBySlug(ctx, bob, "bob", fork.Slug)
	require.NoError(t, err)
	assert.Equal(t, fork.ID, detail.ID)
	assert.Equal(t, "bob", detail.AuthorUsername)
	require.Len(t, detail.Steps, 2)
	assert.Equal(t, []int{1, 2}, []int{detail.Steps[0].StepOrder, detail.Steps[1].StepOrder})
	assert.Equal(t, []string{"go"}, detail.Tags)
	require.NotNil(t, detail.ForkedFrom)
	assert.Equal(t, models.ProjectLink{ID: src.ID, Title: "Flow", Slug: "flow", AuthorUsername: "alice"}, *detail.ForkedFrom)
	assert.Equal(t, detail.ForkedFrom, detail.InspiredBy)

	// The fork is a draft, so only bob can read it.
	_, err = svc.GetProjectBySlug(ctx, alice, "bob", fork.Slug)
	requireKind(t, err, apperr.KindNotFound, "")
	_, err = svc.GetProjectBySlug(ctx, "", "bob", fork.Slug)
	requireKind(t, err, apperr.KindNotFound, "")

	detail, err = svc.GetProjectBySlug(ctx, "", "alice", "flow")
	require.NoError(t, err)
	assert.Nil(t, detail.ForkedFrom)
	assert.Nil(t, detail.InspiredBy)

	_, err = svc.GetProjectBySlug(ctx, alice, "bob", "flow")
	requireKind(t, err, apperr.KindNotFound, "")
	_, err = svc.GetProjectBySlug(ctx, alice, "alice", "missing")
	requireKind(t, err, apperr.KindNotFound, "")

	store.Fail("ListTags", errBoom)
	_, err = svc.GetProjectBySlug(ctx, alice, "alice", "flow")
	requireKind(t, err, apperr.KindInternal, "")
}

func TestGetProjectBySlugHidesDraftLineage(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	src := createPublished(t, svc, alice, "Flow", []string{"a"})
	fork, err := svc.ForkProject(ctx, src.ID, bob)
	require.NoError(t, err)

	project, err := store.GetProject(ctx, src.ID)
	require.NoError(t, err)
	project.IsPublished, project.IsApproved = false, false
	require.NoError(t, store.UpdateProject(ctx, project))

	detail, err := svc.GetProjectBySlug(ctx, bob, "bob", fork.Slug)
	require.NoError(t, err)
	assert.Nil(t, detail.ForkedFrom, "the source is now alice's draft")
}

func TestListUserProjects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	pub := createPublished(t, svc, alice, "Public", []string{"a", "b", "c"})
	draft := createDraft(t, svc, alice, "Draft", []string{"a"})

	own, err := svc.ListUserProjects(ctx, alice, alice)
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, draft.ID, own[0].ID, "most recently updated first")
	assert.Equal(t, 1, own[0].StepCount)
	assert.Equal(t, 3, own[1].StepCount)

	seen, err := svc.ListUserProjects(ctx, bob, alice)
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, pub.ID, seen[0].ID)

	empty, err := svc.ListUserProjects(ctx, alice, bob)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStarReads(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	ref := createPublished(t, svc, alice, "Flow", []string{"a"})
	draft := createDraft(t, svc, alice, "Draft", []string{"a"})

	_, err := svc.ToggleStar(ctx, bob, ref.ID)
	require.NoError(t, err)

	starred, err := svc.IsStarred(ctx, bob, ref.ID)
	require.NoError(t, err)
	assert.True(t, starred)
	starred, err = svc.IsStarred(ctx, alice, ref.ID)
	require.NoError(t, err)
	assert.False(t, starred)

	// The live count ignores a drifted cache.
	require.NoError(t, store.SetCounter(ctx, ref.ID, models.CounterStars, 9))
	n, err := svc.StarCount(ctx, alice, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.IsStarred(ctx, bob, draft.ID)
	requireKind(t, err, apperr.KindNotFound, "")
	_, err = svc.StarCount(ctx, bob, draft.ID)
	requireKind(t, err, apperr.KindNotFound, "")
	n, err = svc.StarCount(ctx, alice, draft.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
