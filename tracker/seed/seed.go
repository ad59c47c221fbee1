package seed

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"thesis_tracker/tracker/auth"
	"thesis_tracker/tracker/schema"

	"gopkg.in/yaml.v3"
)

type Account struct {
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Kind      string `yaml:"kind"`
	Password  string `yaml:"password"`
}

type File struct {
	Accounts []Account `yaml:"accounts"`
}

func Decode(r io.Reader) (File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return file, nil
		}
		return File{}, fmt.Errorf("error decoding seed file: %w", err)
	}

	for i, account := range file.Accounts {
		if account.Email == "" {
			return File{}, fmt.Errorf("seed account %d is missing an email", i)
		}
		if !schema.ValidKind(account.Kind) {
			return File{}, fmt.Errorf("seed account %v has invalid kind '%v'", account.Email, account.Kind)
		}
	}
	return file, nil
}

func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("error opening seed file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Apply creates every account that does not exist yet and returns how many
// were created. Existing emails are left as they are.
func Apply(file File, provider auth.IdentityProvider) (int, error) {
	created := 0
	for _, account := range file.Accounts {
		_, err := provider.CreateAccount(auth.NewAccount{
			Email:     account.Email,
			FirstName: account.FirstName,
			LastName:  account.LastName,
			Kind:      account.Kind,
			Password:  account.Password,
		})
		if err != nil {
			if errors.Is(err, auth.ErrEmailAlreadyInUse) {
				slog.Info("seed account already exists", "email", account.Email)
				continue
			}
			return created, fmt.Errorf("error seeding account %v: %w", account.Email, err)
		}
		created++
	}

	slog.Info("seeded accounts", "created", created, "total", len(file.Accounts))
	return created, nil
}
