package tests

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"thesis_tracker/tracker/auth"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/services"
	"thesis_tracker/tracker/storage"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	adminEmail    = "admin@uni.edu"
	adminPassword = "admin_password123"
)

// unmeteredDisk hides the host's free space so uploads never trip the
// capacity check in tests.
type unmeteredDisk struct {
	storage.Storage
}

func (unmeteredDisk) Usage() (storage.UsageStats, error) {
	return storage.UsageStats{}, nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.now = t
}

type testEnv struct {
	db      *gorm.DB
	api     chi.Router
	storage storage.Storage
	clock   *testClock

	admin client
}

type testOptions struct {
	submissionLimit int
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWith(t, testOptions{})
}

func setupTestEnvWith(t *testing.T, opts testOptions) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	// Every connection to file::memory: opens a fresh database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(schema.AllModels()...); err != nil {
		t.Fatal(err)
	}

	store := unmeteredDisk{Storage: storage.NewSharedDisk(filepath.Join(t.TempDir(), "storage"))}

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("t8vq03mz7ak1"),
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	tracker := services.NewThesisTracker(db, store, userAuth, services.Options{
		SubmissionLimit: opts.submissionLimit,
		Clock:           clock.Now,
	})

	env := &testEnv{db: db, api: tracker.Routes(), storage: store, clock: clock}

	env.admin = env.newClient()
	if err := env.admin.login(loginInfo{Email: adminEmail, Password: adminPassword}); err != nil {
		t.Fatal(err)
	}

	return env
}

func (e *testEnv) newClient() client {
	return client{api: e.api}
}

// newAccount creates an account through the admin api and returns a client
// logged in as that account.
func (e *testEnv) newAccount(t *testing.T, kind, name string) client {
	login := loginInfo{Email: fmt.Sprintf("%v@uni.edu", name), Password: name + "_password"}

	account, err := e.admin.createAccount(newAccountRequest{
		Email:     login.Email,
		FirstName: name,
		LastName:  kind,
		Kind:      kind,
		Password:  login.Password,
	})
	if err != nil {
		t.Fatal(err)
	}

	c := e.newClient()
	if err := c.login(login); err != nil {
		t.Fatal(err)
	}
	if c.accountId != account.Id {
		t.Fatalf("login returned account %v, expected %v", c.accountId, account.Id)
	}
	return c
}

// group is a thesis with one student author and one faculty adviser.
type group struct {
	student client
	adviser client
	thesis  thesisView
}

func (e *testEnv) newGroup(t *testing.T, title string) group {
	student := e.newAccount(t, schema.Student, title+"_student")
	adviser := e.newAccount(t, schema.Faculty, title+"_adviser")

	thesis, err := e.admin.createThesis(createThesisRequest{
		Title:    title,
		Authors:  ids(student),
		Advisers: ids(adviser),
	})
	if err != nil {
		t.Fatal(err)
	}

	return group{student: student, adviser: adviser, thesis: thesis}
}

func (e *testEnv) setDeadline(t *testing.T, phase int, date string) {
	if err := e.admin.setDeadlines(map[string]string{fmt.Sprint(phase): date}); err != nil {
		t.Fatal(err)
	}
}
