package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/repository"
	"promptflows/backend/pkg/models"
)

func TestForkProjectCopiesContent(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	src := createPublished(t, svc, alice, "Source", []string{"one", "two", "three"}, "go", "ai")

	// Give a source step a fork note that must not be carried over.
	rows, err := store.ListSteps(ctx, src.ID)
	require.NoError(t, err)
	note := "changed the prompt"
	rows[1].ForkNote = &note
	require.NoError(t, store.DeleteSteps(ctx, src.ID))
	require.NoError(t, store.InsertSteps(ctx, rows))

	ref, err := svc.ForkProject(ctx, src.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, "bob", ref.ActorHandle)
	assert.Contains(t, ref.Slug, "source-")
	assert.Len(t, ref.Slug, len("source-")+4)

	fork, err := store.GetProject(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, fork.AuthorID)
	assert.Equal(t, "Source", fork.Title)
	assert.False(t, fork.IsPublished)
	assert.False(t, fork.IsApproved)
	require.NotNil(t, fork.ForkedFromID)
	require.NotNil(t, fork.InspiredByID)
	assert.Equal(t, src.ID, *fork.ForkedFromID)
	assert.Equal(t, src.ID, *fork.InspiredByID)
	assert.Zero(t, fork.StarCount+fork.ForkCount+fork.CommentCount)

	copied, err := store.ListSteps(ctx, ref.ID)
	require.NoError(t, err)
	require.Len(t, copied, 3)
	for i, st := range copied {
		assert.Equal(t, rows[i].Title, st.Title)
		assert.Equal(t, i+1, st.StepOrder)
		assert.Nil(t, st.ForkNote)
		assert.NotEqual(t, rows[i].ID, st.ID)
	}

	tags, err := store.ListTags(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai", "go"}, tags)

	counters, err := store.GetCounters(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.ForkCount)
}

func TestForkProjectSourceNotAvailable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	draft, err := svc.CreateProject(ctx, alice, models.ProjectInput{Title: "Draft", Steps: steps("a")})
	require.NoError(t, err)

	_, err = svc.ForkProject(ctx, draft.ID, bob)
	requireKind(t, err, apperr.KindNotFound, apperr.CodeSourceNotAvailable)

	_, err = svc.ForkProject(ctx, "missing", bob)
	requireKind(t, err, apperr.KindNotFound, apperr.CodeSourceNotAvailable)

	// Owners cannot fork their own drafts either.
	_, err = svc.ForkProject(ctx, draft.ID, alice)
	requireKind(t, err, apperr.KindNotFound, apperr.CodeSourceNotAvailable)
}

func TestForkProjectActorProfileMissing(t *testing.T) {
	svc, _ := newTestService(t)
	src := createPublished(t, svc, alice, "Source", []string{"a"})

	_, err := svc.ForkProject(context.Background(), src.ID, "ghost")
	requireKind(t, err, apperr.KindInternal, apperr.CodeActorProfileMissing)
}

func TestForkProjectSlugExhausted(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, WithSuffixGenerator(func(int) string { return "same" }))
	src := createPublished(t, svc, alice, "Source", []string{"a"})
	createPublished(t, svc, alice, "Source Same", []string{"a"})

	_, err := svc.ForkProject(ctx, src.ID, bob)
	requireKind(t, err, apperr.KindConflict, apperr.CodeSlugExhausted)

	ids, _ := store.ListProjectIDs(ctx)
	assert.Len(t, ids, 2)
}

func TestForkProjectRetriesSlugClaimedConcurrently(t *testing.T) {
	ctx := context.Background()
	suffixes := []string{"aaaa", "bbbb"}
	svc, store := newTestService(t, WithSuffixGenerator(func(int) string {
		next := suffixes[0]
		suffixes = suffixes[1:]
		return next
	}))
	src := createPublished(t, svc, alice, "Source", []string{"a"})
	store.Fail("CreateProject", repository.ErrConflict)

	ref, err := svc.ForkProject(ctx, src.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, "source-bbbb", ref.Slug)

	counters, _ := store.GetCounters(ctx, src.ID)
	assert.Equal(t, 1, counters.ForkCount)
}

func TestForkProjectRollsBackOnStepFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	src := createPublished(t, svc, alice, "Source", []string{"a", "b"})
	store.Fail("InsertSteps", errBoom)

	_, err := svc.ForkProject(ctx, src.ID, bob)
	requireKind(t, err, apperr.KindInternal, "")

	ids, err := store.ListProjectIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{src.ID}, ids)

	counters, _ := store.GetCounters(ctx, src.ID)
	assert.Zero(t, counters.ForkCount)
}

func TestForkProjectRollsBackOnTagFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	src := createPublished(t, svc, alice, "Source", []string{"a"}, "go")
	store.Fail("InsertTags", errBoom)

	_, err := svc.ForkProject(ctx, src.ID, bob)
	require.Error(t, err)

	ids, _ := store.ListProjectIDs(ctx)
	assert.Equal(t, []string{src.ID}, ids)
}

func TestForkProjectToleratesCounterFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	src := createPublished(t, svc, alice, "Source", []string{"a"})
	store.Fail("AddCounter", errBoom)

	ref, err := svc.ForkProject(ctx, src.ID, bob)
	require.NoError(t, err)

	_, err = store.GetProject(ctx, ref.ID)
	require.NoError(t, err)

	counters, err := svc.Recount(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counters.ForkCount)
}
