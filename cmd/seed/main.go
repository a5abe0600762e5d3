// Package main seeds a ReadSpeed deployment with a bootstrap admin, a
// starter catalog, assessment texts, tier limits and feature flags. It
// is idempotent: rows that already exist are left alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/readspeed/backend/internal/app"
	"github.com/readspeed/backend/internal/app/domain/assessment"
	"github.com/readspeed/backend/internal/app/domain/book"
	"github.com/readspeed/backend/internal/app/domain/profile"
	"github.com/readspeed/backend/internal/app/domain/subscription"
	"github.com/readspeed/backend/internal/app/services/assessments"
	"github.com/readspeed/backend/internal/app/services/books"
	"github.com/readspeed/backend/internal/app/services/flags"
	"github.com/readspeed/backend/internal/app/services/profiles"
	"github.com/readspeed/backend/internal/app/storage"
	"github.com/readspeed/backend/internal/app/storage/postgres"
	supastore "github.com/readspeed/backend/internal/app/storage/supabase"
	"github.com/readspeed/backend/internal/config"
	"github.com/readspeed/backend/internal/database"
	apperrors "github.com/readspeed/backend/internal/errors"
	"github.com/readspeed/backend/internal/logging"
	"github.com/readspeed/backend/internal/platform/migrations"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	adminEmail := flag.String("admin-email", "", "bootstrap admin email (must be on ADMIN_EMAILS)")
	adminPassword := flag.String("admin-password", "", "bootstrap admin password")
	flag.Parse()

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.New("seed", cfg.Logging.Level, "text")

	stores, closeStores, err := openStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}
	defer closeStores()

	application, err := app.New(stores, app.Options{
		Auth: profiles.Config{
			JWTSecret:   cfg.Auth.JWTSecret,
			TokenTTL:    time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
			AdminEmails: cfg.AdminEmailList(),
		},
	}, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}

	ctx := context.Background()

	if *adminEmail != "" {
		seedAdmin(ctx, application, *adminEmail, *adminPassword, log)
	}
	admin := adminProbe(*adminEmail)

	seedLimits(ctx, application, log)
	seedFlags(ctx, application, log)
	seedTexts(ctx, application, log)
	seedBooks(ctx, application, admin, log)

	log.Info("seeding complete")
}

// openStores connects the configured persistent driver. Memory storage
// cannot be seeded: the rows would die with this process.
func openStores(cfg *config.Config, log *logging.Logger) (app.Stores, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := sqlx.Connect("postgres", cfg.Database.DSN)
		if err != nil {
			return app.Stores{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Database.Migrate {
			if err := migrations.Apply(db.DB); err != nil {
				db.Close()
				return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		store := postgres.New(db)
		return allStores(store), func() { db.Close() }, nil

	case config.DriverSupabase:
		client, err := database.NewClient(database.Config{
			URL:        cfg.Supabase.URL,
			ServiceKey: cfg.Supabase.ServiceKey,
		})
		if err != nil {
			return app.Stores{}, nil, fmt.Errorf("supabase client: %w", err)
		}
		store := supastore.New(client)
		return allStores(store), func() {}, nil

	default:
		return app.Stores{}, nil, fmt.Errorf("storage driver %q cannot be seeded", cfg.Storage.Driver)
	}
}

// storeSet is any driver implementing every store interface.
type storeSet interface {
	storage.ProfileStore
	storage.SessionStore
	storage.BookStore
	storage.ReadingStore
	storage.AssessmentStore
	storage.SubscriptionStore
	storage.FlagStore
	storage.Pinger
}

func allStores(s storeSet) app.Stores {
	return app.Stores{
		Profiles:      s,
		Sessions:      s,
		Books:         s,
		Readings:      s,
		Assessments:   s,
		Subscriptions: s,
		Flags:         s,
		Pinger:        s,
	}
}

func seedAdmin(ctx context.Context, application *app.Application, email, password string, log *logging.Logger) {
	if password == "" {
		log.Fatal("-admin-password is required with -admin-email")
	}
	username := strings.SplitN(email, "@", 2)[0]
	username = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, strings.ToLower(username))

	created, err := application.Profiles.Register(ctx, profiles.RegisterInput{
		Email:    email,
		Password: password,
		Username: username,
	})
	if err != nil {
		if conflict(err) {
			log.WithField("email", email).Info("admin account already exists")
			return
		}
		log.WithError(err).Fatal("create admin")
	}
	if created.Role != profile.RoleAdmin {
		log.WithField("email", email).
			Warn("account created without the admin role; add the email to ADMIN_EMAILS and re-run")
		return
	}
	log.WithField("email", email).WithField("username", created.Username).Info("admin account created")
}

// adminProbe is a synthetic admin identity used for owner attribution on
// seeded catalog rows.
func adminProbe(email string) profile.Profile {
	return profile.Profile{ID: "seed", Email: email, Role: profile.RoleAdmin, Tier: subscription.TierPro}
}

func seedLimits(ctx context.Context, application *app.Application, log *logging.Logger) {
	for _, tier := range []string{subscription.TierFree, subscription.TierReader, subscription.TierPro} {
		if _, err := application.Subscriptions.SetLimits(ctx, subscription.DefaultLimits(tier)); err != nil {
			log.WithError(err).WithField("tier", tier).Warn("seed limits")
			continue
		}
		log.WithField("tier", tier).Info("tier limits seeded")
	}
}

func seedFlags(ctx context.Context, application *app.Application, log *logging.Logger) {
	defaults := []struct {
		key string
		in  flags.SetInput
	}{
		{"live_leaderboard", flags.SetInput{
			Description: "Real-time leaderboard updates over websocket",
			Enabled:     true,
			MinTier:     subscription.TierPro,
		}},
		{"public_profiles", flags.SetInput{
			Description: "Reader profile pages visible without login",
			Enabled:     true,
		}},
	}
	for _, f := range defaults {
		if _, err := application.Flags.Set(ctx, f.key, f.in); err != nil {
			log.WithError(err).WithField("key", f.key).Warn("seed flag")
			continue
		}
		log.WithField("key", f.key).Info("feature flag seeded")
	}
}

func seedBooks(ctx context.Context, application *app.Application, admin profile.Profile, log *logging.Logger) {
	catalog := []books.CreateInput{
		{Title: "Moby-Dick", Author: "Herman Melville", Genre: "classic", TotalPages: 635},
		{Title: "Pride and Prejudice", Author: "Jane Austen", Genre: "classic", TotalPages: 432},
		{Title: "The Pragmatic Programmer", Author: "Andrew Hunt", Genre: "technical", TotalPages: 352},
		{Title: "Thinking, Fast and Slow", Author: "Daniel Kahneman", Genre: "nonfiction", TotalPages: 499},
		{Title: "Dune", Author: "Frank Herbert", Genre: "scifi", TotalPages: 412},
	}
	for _, in := range catalog {
		existing, _, err := application.Books.List(ctx, book.Filter{Search: in.Title, PerPage: 1})
		if err == nil && len(existing) > 0 {
			continue
		}
		if _, err := application.Books.Create(ctx, admin, in); err != nil {
			log.WithError(err).WithField("title", in.Title).Warn("seed book")
			continue
		}
		log.WithField("title", in.Title).Info("book seeded")
	}
}

func seedTexts(ctx context.Context, application *app.Application, log *logging.Logger) {
	texts := []assessments.TextInput{
		{
			Title:      "The Habit of Reading",
			Difficulty: assessment.DifficultyEasy,
			Active:     true,
			Content: "Reading a little every day compounds in a way that reading in " +
				"bursts never does. Ten pages before bed is three and a half thousand " +
				"pages in a year, which is a dozen substantial books. The readers who " +
				"seem to get through everything rarely read quickly; they read " +
				"constantly, and they stop reading books that bore them without guilt.",
			Questions: []assessment.Question{
				{
					Prompt:  "What habit does the passage recommend?",
					Options: []string{"Reading in long bursts", "Reading a little every day", "Only reading fast"},
					Answer:  1,
				},
				{
					Prompt:  "How do prolific readers treat boring books?",
					Options: []string{"They finish them anyway", "They stop without guilt", "They skim the ending"},
					Answer:  1,
				},
			},
		},
		{
			Title:      "How Eyes Move Across a Page",
			Difficulty: assessment.DifficultyMedium,
			Active:     true,
			Content: "The eye does not glide smoothly along a line of text. It jumps in " +
				"quick movements called saccades and takes in words only during the " +
				"brief fixations between them. Skilled readers make fewer fixations " +
				"per line and rarely regress to re-read earlier words. Training that " +
				"reduces regressions tends to raise reading speed without hurting " +
				"comprehension, whereas training that merely pushes the eyes forward " +
				"faster often costs more understanding than it saves in time.",
			Questions: []assessment.Question{
				{
					Prompt:  "What are the eye's jumps between fixations called?",
					Options: []string{"Regressions", "Saccades", "Glides"},
					Answer:  1,
				},
				{
					Prompt:  "Which training tends to preserve comprehension?",
					Options: []string{"Reducing regressions", "Forcing faster eye movement", "Longer fixations"},
					Answer:  0,
				},
				{
					Prompt:  "When does the eye take in words?",
					Options: []string{"During saccades", "During fixations", "Continuously"},
					Answer:  1,
				},
			},
		},
		{
			Title:      "The Limits of Speed",
			Difficulty: assessment.DifficultyHard,
			Active:     true,
			Content: "Claims of reading thousands of words per minute with full " +
				"comprehension do not survive controlled testing. Language " +
				"comprehension is bounded by the rate at which the reader can " +
				"integrate propositions into a coherent mental model, not by the " +
				"mechanics of vision. Beyond roughly six hundred words per minute, " +
				"measured comprehension of unfamiliar material declines steeply, and " +
				"what remains is better described as skimming: a useful skill, but a " +
				"different one, suited to triage rather than understanding. The " +
				"honest promise of speed-reading practice is more modest and still " +
				"worthwhile: eliminating subvocalization where it is redundant, " +
				"widening the recognition span, and matching pace to purpose.",
			Questions: []assessment.Question{
				{
					Prompt:  "What bounds comprehension, according to the passage?",
					Options: []string{"Eye mechanics", "Integrating propositions into a mental model", "Page layout"},
					Answer:  1,
				},
				{
					Prompt:  "What happens past roughly 600 words per minute?",
					Options: []string{"Comprehension declines steeply", "Nothing changes", "Vision fails"},
					Answer:  0,
				},
				{
					Prompt:  "How does the passage characterize very fast reading?",
					Options: []string{"Superior reading", "Skimming suited to triage", "Impossible"},
					Answer:  1,
				},
			},
		},
	}
	existing, err := application.Assessments.ListTexts(ctx, "", false)
	if err != nil {
		log.WithError(err).Warn("list assessment texts")
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t.Title] = true
	}

	for _, in := range texts {
		if have[in.Title] {
			continue
		}
		if _, err := application.Assessments.CreateText(ctx, in); err != nil {
			log.WithError(err).WithField("title", in.Title).Warn("seed text")
			continue
		}
		log.WithField("title", in.Title).Info("assessment text seeded")
	}
}

func conflict(err error) bool {
	svcErr := apperrors.GetServiceError(err)
	return svcErr != nil && svcErr.Code == apperrors.CodeConflict
}
