package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"promptflows/backend/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("promptflows"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "schema must apply twice")

	store := NewPostgresStore(pool)
	counters := NewPostgresCounterStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.CreateProfile(ctx, &models.Profile{ID: "sub-1", Username: "ada", CreatedAt: now}))

	project := &models.Project{
		ID: "p1", AuthorID: "sub-1", Title: "Demo", Slug: "demo",
		Tool: models.ToolCursor, Category: "web", IsPublished: true, IsApproved: true,
		CreatedAt: now, UpdatedAt: now,
	}

	t.Run("projects", func(t *testing.T) {
		require.NoError(t, store.CreateProject(ctx, project))

		dup := *project
		dup.ID = "p2"
		assert.ErrorIs(t, store.CreateProject(ctx, &dup), ErrConflict)

		got, err := store.GetProject(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, project.Slug, got.Slug)
		assert.True(t, got.Visible())

		_, err = store.GetProject(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		exists, err := store.SlugExists(ctx, "demo")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("steps and tags", func(t *testing.T) {
		mode := models.ContextModeChat
		require.NoError(t, store.InsertSteps(ctx, []models.PromptStep{
			{ID: "s2", ProjectID: "p1", StepOrder: 2, Title: "second", CreatedAt: now},
			{ID: "s1", ProjectID: "p1", StepOrder: 1, Title: "first", ContextMode: &mode, CreatedAt: now},
		}))

		steps, err := store.ListSteps(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, "first", steps[0].Title)
		require.NotNil(t, steps[0].ContextMode)
		assert.Equal(t, mode, *steps[0].ContextMode)

		err = store.InsertSteps(ctx, []models.PromptStep{
			{ID: "s3", ProjectID: "p1", StepOrder: 3, Title: "ok", CreatedAt: now},
			{ID: "s4", ProjectID: "p1", StepOrder: 4, Title: "", CreatedAt: now},
		})
		require.Error(t, err)
		n, err := store.CountSteps(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 2, n, "failed batch must not leave partial rows")

		highest, err := store.MaxStepOrder(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 2, highest)

		require.NoError(t, store.InsertTags(ctx, "p1", []string{"go", "ai"}))
		tags, err := store.ListTags(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"ai", "go"}, tags)
	})

	t.Run("reads by slug and author", func(t *testing.T) {
		got, err := store.GetProjectBySlug(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, "p1", got.ID)

		_, err = store.GetProjectBySlug(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		list, err := store.ListProjectsByAuthor(ctx, "sub-1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "demo", list[0].Slug)
		assert.Equal(t, 2, list[0].StepCount)
		assert.True(t, list[0].IsPublished)

		none, err := store.ListProjectsByAuthor(ctx, "sub-404")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("stars and counters", func(t *testing.T) {
		require.NoError(t, store.InsertStar(ctx, &models.Star{UserID: "sub-1", ProjectID: "p1", CreatedAt: now}))
		assert.ErrorIs(t, store.InsertStar(ctx, &models.Star{UserID: "sub-1", ProjectID: "p1", CreatedAt: now}), ErrConflict)

		n, err := counters.CountStars(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		v, err := counters.AddCounter(ctx, "p1", models.CounterStars, -3)
		require.NoError(t, err)
		assert.Zero(t, v)

		require.NoError(t, counters.SetCounter(ctx, "p1", models.CounterStars, n))
		c, err := counters.GetCounters(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, c.StarCount)
	})

	t.Run("comments", func(t *testing.T) {
		require.NoError(t, store.InsertComment(ctx, &models.Comment{ID: "c1", ProjectID: "p1", UserID: "sub-1", Body: "a", CreatedAt: now}))
		require.NoError(t, store.InsertComment(ctx, &models.Comment{ID: "c2", ProjectID: "p1", UserID: "sub-1", Body: "b", CreatedAt: now.Add(time.Second)}))
		parent := "c1"
		require.NoError(t, store.InsertComment(ctx, &models.Comment{ID: "c3", ProjectID: "p1", UserID: "sub-1", Body: "r", ParentCommentID: &parent, CreatedAt: now.Add(2 * time.Second)}))

		require.NoError(t, store.SetPinned(ctx, "c1", true))
		assert.ErrorIs(t, store.SetPinned(ctx, "c2", true), ErrConflict)
		require.NoError(t, store.UnpinAll(ctx, "p1"))
		require.NoError(t, store.SetPinned(ctx, "c2", true))

		require.NoError(t, store.DeleteComment(ctx, "c1"))
		n, err := counters.CountComments(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("delete cascades", func(t *testing.T) {
		fork := *project
		fork.ID, fork.Slug = "p-fork", "demo-fork"
		src := "p1"
		fork.ForkedFromID = &src
		require.NoError(t, store.CreateProject(ctx, &fork))

		forks, err := counters.CountForks(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, forks)

		require.NoError(t, store.DeleteProject(ctx, "p1"))
		n, err := store.CountSteps(ctx, "p1")
		require.NoError(t, err)
		assert.Zero(t, n)

		got, err := store.GetProject(ctx, "p-fork")
		require.NoError(t, err)
		assert.Nil(t, got.ForkedFromID)

		ids, err := store.ListProjectIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"p-fork"}, ids)
	})
}
