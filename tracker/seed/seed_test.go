package seed_test

import (
	"bytes"
	"strings"
	"testing"
	"thesis_tracker/tracker/auth"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/seed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const accountsYaml = `
accounts:
  - email: ada@uni.edu
    first_name: Ada
    last_name: Lovelace
    kind: student
    password: ada_password
  - email: edsger@uni.edu
    first_name: Edsger
    last_name: Dijkstra
    kind: faculty
    password: edsger_password
`

func TestDecodeRejectsInvalidKind(t *testing.T) {
	_, err := seed.Decode(strings.NewReader("accounts:\n  - email: x@uni.edu\n    kind: dean\n"))
	assert.ErrorContains(t, err, "invalid kind")

	_, err = seed.Decode(strings.NewReader("accounts:\n  - kind: student\n"))
	assert.ErrorContains(t, err, "missing an email")

	_, err = seed.Decode(strings.NewReader("students: []\n"))
	assert.Error(t, err)
}

func TestApplyIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(schema.AllModels()...))

	provider, err := auth.NewBasicIdentityProvider(db, auth.NewAuditLogger(new(bytes.Buffer)), auth.BasicProviderArgs{
		Secret:        []byte("seed-secret"),
		AdminEmail:    "admin@uni.edu",
		AdminPassword: "admin_password",
	})
	require.NoError(t, err)

	file, err := seed.Decode(strings.NewReader(accountsYaml))
	require.NoError(t, err)
	require.Len(t, file.Accounts, 2)

	created, err := seed.Apply(file, provider)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = seed.Apply(file, provider)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	login, err := provider.LoginWithEmail("ada@uni.edu", "ada_password")
	require.NoError(t, err)
	assert.Equal(t, schema.Student, login.Kind)

	var count int64
	require.NoError(t, db.Model(&schema.Account{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}
