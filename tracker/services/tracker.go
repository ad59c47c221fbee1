package services

import (
	"log"
	"net/http"
	"os"
	"thesis_tracker/tracker/auth"
	"thesis_tracker/tracker/storage"
	"thesis_tracker/tracker/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

const ApiPrefix = "/api/v1"

type Options struct {
	// SubmissionLimit is the number of uploads allowed per account per day.
	// Zero disables the limit.
	SubmissionLimit int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

type ThesisTracker struct {
	account AccountService
	thesis  ThesisService
}

func NewThesisTracker(db *gorm.DB, store storage.Storage, userAuth auth.IdentityProvider, opts Options) ThesisTracker {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return ThesisTracker{
		account: AccountService{db: db, userAuth: userAuth},
		thesis: ThesisService{
			db:       db,
			storage:  store,
			userAuth: userAuth,
			quota:    newSubmissionQuota(opts.SubmissionLimit),
			now:      clock,
		},
	}
}

func (t *ThesisTracker) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/account", t.account.Routes())
	r.Mount("/thesis", t.thesis.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
