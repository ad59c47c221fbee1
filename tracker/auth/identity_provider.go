package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"thesis_tracker/tracker/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFoundWithEmail = errors.New("no account found for given email")
	ErrInvalidCredentials       = errors.New("invalid login credentials")
	ErrGeneratingJwt            = errors.New("error generating jwt")
	ErrEmailAlreadyInUse        = errors.New("email is already in use")
	ErrInvalidKind              = errors.New("account kind must be student, faculty or administrator")
)

type LoginResult struct {
	AccountId   uuid.UUID
	Kind        string
	AccessToken string
}

type NewAccount struct {
	Email     string
	FirstName string
	LastName  string
	Kind      string
	Password  string
}

type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	LoginWithEmail(email, password string) (LoginResult, error)

	LoginWithToken(accessToken string) (LoginResult, error)

	CreateAccount(args NewAccount) (uuid.UUID, error)

	// CheckPassword re-verifies the password of an already authenticated
	// account before sensitive changes.
	CheckPassword(ctx context.Context, account schema.Account, password string) error
}

func addInitialAdminToDb(db *gorm.DB, accountId uuid.UUID, email string, password []byte) error {
	account := schema.Account{
		Id:        accountId,
		Email:     email,
		FirstName: "Admin",
		LastName:  "Admin",
		Kind:      schema.Administrator,
	}
	if password != nil {
		account.Password = password
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Account
		result := txn.Limit(1).Find(&existing, "id = ? or email = ?", accountId, email)
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			result := txn.Create(&account)
			if result.Error != nil {
				slog.Error("sql error creating initial admin account", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return nil
}

// createAccountInDb stores a new account, rejecting duplicate emails.
func createAccountInDb(db *gorm.DB, account schema.Account) error {
	return db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Account
		result := txn.Limit(1).Find(&existing, "email = ?", account.Email)
		if result.Error != nil {
			slog.Error("sql error checking for existing email", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return ErrEmailAlreadyInUse
		}

		result = txn.Create(&account)
		if result.Error != nil {
			slog.Error("sql error creating new account entry", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	})
}

type requestContextKey string

const AccountRequestContextKey requestContextKey = "account"

func withAccount(r *http.Request, account schema.Account) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), AccountRequestContextKey, account))
}

func AccountFromContext(r *http.Request) (schema.Account, error) {
	accountUntyped := r.Context().Value(AccountRequestContextKey)
	if accountUntyped == nil {
		return schema.Account{}, fmt.Errorf("account field not found in request context")
	}
	account, ok := accountUntyped.(schema.Account)
	if !ok {
		return schema.Account{}, fmt.Errorf("invalid value for account field")
	}
	return account, nil
}
