package main

import (
	"context"
	"flag"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"promptflows/backend/internal/config"
	"promptflows/backend/internal/logging"
	"promptflows/backend/internal/repository"
	"promptflows/backend/internal/services"
	"promptflows/backend/pkg/models"
)

type seedProject struct {
	Author string
	Input  models.ProjectInput
}

func strPtr(s string) *string { return &s }

func main() {
	ctx := context.Background()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	store := repository.NewPostgresStore(pool)
	svc := services.NewService(store, repository.NewPostgresCounterStore(pool), logger, cfg.Engine)

	// 1. Ensure demo profiles exist
	for _, p := range []struct{ ID, Username, Name string }{
		{"seed-ada", "ada", "Ada"},
		{"seed-grace", "grace", "Grace"},
	} {
		profile, err := svc.EnsureProfile(ctx, p.ID, p.Username, p.Name)
		if err != nil {
			log.Fatalf("Failed to ensure profile %s: %v", p.Username, err)
		}
		logger.Info("Profile ready", "id", profile.ID, "username", profile.Username)
	}

	// 2. Create demo projects, skipping any whose slug already exists
	projects := []seedProject{
		{
			Author: "seed-ada",
			Input: models.ProjectInput{
				Title:       "Landing page in an afternoon",
				Description: strPtr("Scaffold, style and ship a marketing page."),
				Tool:        models.ToolCursor,
				Category:    "web",
				Difficulty:  strPtr("beginner"),
				Tags:        []string{"nextjs", "tailwind"},
				IsPublished: true,
				Steps: []models.StepInput{
					{Title: "Scaffold", PromptText: "Create a Next.js app with Tailwind.", ContextMode: strPtr("composer")},
					{Title: "Hero section", PromptText: "Add a hero with a headline and CTA.", ContextMode: strPtr("inline")},
					{Title: "Deploy", PromptText: "Write a deploy script for Vercel.", ContextMode: strPtr("terminal")},
				},
			},
		},
		{
			Author: "seed-grace",
			Input: models.ProjectInput{
				Title:       "CLI with tests first",
				Tool:        models.ToolClaude,
				Category:    "tooling",
				Tags:        []string{"go", "cli"},
				IsPublished: true,
				Steps: []models.StepInput{
					{Title: "Spec the commands", PromptText: "List the subcommands and flags.", ContextMode: strPtr("chat")},
					{Title: "Tests", PromptText: "Write table tests for each command.", ContextMode: strPtr("chat")},
				},
			},
		},
	}

	var created []*models.ProjectRef
	for _, p := range projects {
		exists, err := store.SlugExists(ctx, services.Slugify(p.Input.Title))
		if err != nil {
			log.Fatalf("Failed to check slug: %v", err)
		}
		if exists {
			logger.Info("Skipping existing project", "title", p.Input.Title)
			continue
		}
		ref, err := svc.CreateProject(ctx, p.Author, p.Input)
		if err != nil {
			log.Printf("Failed to create project %s: %v", p.Input.Title, err)
			continue
		}
		created = append(created, ref)
		logger.Info("Seeded project", "slug", ref.Slug, "id", ref.ID)
	}

	// 3. Social activity on freshly created projects
	if len(created) > 0 {
		first := created[0]
		if ref, err := svc.ForkProject(ctx, first.ID, "seed-grace"); err != nil {
			log.Printf("Failed to fork %s: %v", first.Slug, err)
		} else {
			logger.Info("Seeded fork", "slug", ref.Slug)
		}
		if _, err := svc.ToggleStar(ctx, "seed-grace", first.ID); err != nil {
			log.Printf("Failed to star %s: %v", first.Slug, err)
		}
		comment, err := svc.AddComment(ctx, "seed-grace", first.ID, "Worked first try for me.", nil)
		if err != nil {
			log.Printf("Failed to comment on %s: %v", first.Slug, err)
		} else if err := svc.PinComment(ctx, "seed-ada", comment.ID); err != nil {
			log.Printf("Failed to pin comment: %v", err)
		}
	}
	logger.Info("Seeding complete!")
}
