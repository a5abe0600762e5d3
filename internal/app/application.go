// Package app wires the ReadSpeed services over their stores and
// manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/readspeed/backend/internal/app/services/assessments"
	"github.com/readspeed/backend/internal/app/services/books"
	"github.com/readspeed/backend/internal/app/services/flags"
	"github.com/readspeed/backend/internal/app/services/leaderboard"
	"github.com/readspeed/backend/internal/app/services/maintenance"
	"github.com/readspeed/backend/internal/app/services/profiles"
	"github.com/readspeed/backend/internal/app/services/readings"
	"github.com/readspeed/backend/internal/app/services/subscriptions"
	"github.com/readspeed/backend/internal/app/services/uploads"
	"github.com/readspeed/backend/internal/app/storage"
	"github.com/readspeed/backend/internal/app/storage/memory"
	"github.com/readspeed/backend/internal/app/system"
	"github.com/readspeed/backend/internal/logging"
	"github.com/readspeed/backend/internal/metrics"
	"github.com/readspeed/backend/internal/objectstore"
)

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation.
type Stores struct {
	Profiles      storage.ProfileStore
	Sessions      storage.SessionStore
	Books         storage.BookStore
	Readings      storage.ReadingStore
	Assessments   storage.AssessmentStore
	Subscriptions storage.SubscriptionStore
	Flags         storage.FlagStore

	// Pinger reports backend health for the admin system snapshot.
	Pinger storage.Pinger
}

// Options carries the cross-cutting dependencies the services need.
type Options struct {
	Auth profiles.Config

	// Redis backs the leaderboard cache. Nil disables caching.
	Redis *redis.Client

	// Scorer grades finished assessments. Nil selects the local formula.
	Scorer assessments.Scorer

	// Objects stores uploaded images. Nil defaults to a local directory.
	Objects        objectstore.Store
	UploadMaxBytes int64

	// Jobs configures the maintenance scheduler. The zero value disables
	// every job.
	Jobs maintenance.Config

	// Metrics may be nil when no collector is wanted (tests).
	Metrics *metrics.Metrics
}

// Application ties the services together and manages their lifecycle.
type Application struct {
	manager   *system.Manager
	log       *logging.Logger
	pinger    storage.Pinger
	startedAt time.Time

	Profiles      *profiles.Service
	Books         *books.Service
	Readings      *readings.Service
	Assessments   *assessments.Service
	Subscriptions *subscriptions.Service
	Leaderboard   *leaderboard.Service
	Flags         *flags.Service
	Uploads       *uploads.Service
	Maintenance   *maintenance.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Profiles == nil {
		stores.Profiles = mem
	}
	if stores.Sessions == nil {
		stores.Sessions = mem
	}
	if stores.Books == nil {
		stores.Books = mem
	}
	if stores.Readings == nil {
		stores.Readings = mem
	}
	if stores.Assessments == nil {
		stores.Assessments = mem
	}
	if stores.Subscriptions == nil {
		stores.Subscriptions = mem
	}
	if stores.Flags == nil {
		stores.Flags = mem
	}
	if stores.Pinger == nil {
		stores.Pinger = mem
	}

	objects := opts.Objects
	if objects == nil {
		local, err := objectstore.NewLocal("data/uploads", "/uploads")
		if err != nil {
			return nil, fmt.Errorf("default object store: %w", err)
		}
		objects = local
	}

	profileSvc := profiles.New(stores.Profiles, stores.Sessions, opts.Auth, log.WithField("component", "profiles"))
	subSvc := subscriptions.New(stores.Subscriptions, stores.Profiles, stores.Readings, log.WithField("component", "subscriptions"))
	bookSvc := books.New(stores.Books, subSvc, log.WithField("component", "books"))
	boardSvc := leaderboard.New(stores.Readings, stores.Assessments, stores.Profiles, opts.Redis, log.WithField("component", "leaderboard"))
	readingSvc := readings.New(stores.Readings, stores.Books, subSvc, boardSvc, log.WithField("component", "readings"))
	assessSvc := assessments.New(stores.Assessments, subSvc, boardSvc, opts.Scorer, opts.Metrics, log.WithField("component", "assessments"))
	flagSvc := flags.New(stores.Flags, log.WithField("component", "flags"))
	uploadSvc := uploads.New(objects, profileSvc, bookSvc, opts.UploadMaxBytes, log.WithField("component", "uploads"))
	maintSvc := maintenance.New(opts.Jobs, boardSvc, subSvc, stores.Sessions, log.WithField("component", "maintenance"))

	manager := system.NewManager()
	if err := manager.Register(maintSvc); err != nil {
		return nil, fmt.Errorf("register maintenance: %w", err)
	}

	return &Application{
		manager:       manager,
		log:           log,
		pinger:        stores.Pinger,
		Profiles:      profileSvc,
		Books:         bookSvc,
		Readings:      readingSvc,
		Assessments:   assessSvc,
		Subscriptions: subSvc,
		Leaderboard:   boardSvc,
		Flags:         flagSvc,
		Uploads:       uploadSvc,
		Maintenance:   maintSvc,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	a.startedAt = time.Now()
	return nil
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Ping reports store health.
func (a *Application) Ping(ctx context.Context) error {
	return a.pinger.Ping(ctx)
}

// Uptime reports how long the application has been running; zero before
// Start.
func (a *Application) Uptime() time.Duration {
	if a.startedAt.IsZero() {
		return 0
	}
	return time.Since(a.startedAt)
}
