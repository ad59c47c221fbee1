package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

func hashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("unable to hash password: %w", err)
	}
	return hashed, nil
}

type BasicIdentityProvider struct {
	jwtManager *JwtManager
	db         *gorm.DB
	auditLog   AuditLogger
}

type BasicProviderArgs struct {
	Secret        []byte
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string
}

func NewBasicIdentityProvider(db *gorm.DB, auditLog AuditLogger, args BasicProviderArgs) (IdentityProvider, error) {
	hashedPwd, err := hashPassword(args.AdminPassword)
	if err != nil {
		return nil, err
	}

	if err := addInitialAdminToDb(db, uuid.New(), args.AdminEmail, hashedPwd); err != nil {
		return nil, err
	}

	ttl := args.TokenTTL
	if ttl == 0 {
		ttl = time.Hour
	}

	return &BasicIdentityProvider{
		jwtManager: NewJwtManager(args.Secret, ttl),
		db:         db,
		auditLog:   auditLog,
	}, nil
}

// accountFromClaims loads the account named by the verified token claims and
// returns the status code to answer with when it cannot be used.
func (auth *BasicIdentityProvider) accountFromClaims(r *http.Request) (schema.Account, int, error) {
	rawId, err := ValueFromContext(r, accountIdKey)
	if err != nil {
		return schema.Account{}, http.StatusUnauthorized, err
	}
	accountId, err := uuid.Parse(rawId)
	if err != nil {
		return schema.Account{}, http.StatusUnauthorized, fmt.Errorf("token carries malformed account id %q", rawId)
	}

	account, err := schema.GetAccount(accountId, auth.db)
	if errors.Is(err, schema.ErrAccountNotFound) {
		return schema.Account{}, http.StatusUnauthorized, err
	}
	if err != nil {
		return schema.Account{}, http.StatusInternalServerError, fmt.Errorf("unable to load account %v: %w", accountId, err)
	}

	// Tokens issued before a role change are no longer honoured.
	if role, err := ValueFromContext(r, roleKey); err != nil || role != account.Kind {
		return schema.Account{}, http.StatusUnauthorized, errors.New("token role does not match account, please log in again")
	}

	return account, http.StatusOK, nil
}

func (auth *BasicIdentityProvider) loadAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, status, err := auth.accountFromClaims(r)
		if err != nil {
			utils.WriteError(w, err.Error(), status)
			return
		}
		next.ServeHTTP(w, withAccount(r, account))
	})
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator(), auth.loadAccount, auth.auditLog.Middleware}
}

func (auth *BasicIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	var account schema.Account
	result := auth.db.Limit(1).Find(&account, "email = ?", email)
	if result.Error != nil {
		slog.Error("sql error looking up account by email", "error", result.Error)
		return LoginResult{}, schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return LoginResult{}, ErrAccountNotFoundWithEmail
	}

	if err := auth.CheckPassword(context.Background(), account, password); err != nil {
		return LoginResult{}, err
	}

	token, err := auth.jwtManager.CreateAccountJwt(account.Id, account.Kind)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	return LoginResult{AccountId: account.Id, Kind: account.Kind, AccessToken: token}, nil
}

// LoginWithToken is only meaningful for external identity providers; basic
// tokens are minted by LoginWithEmail.
func (auth *BasicIdentityProvider) LoginWithToken(accessToken string) (LoginResult, error) {
	return LoginResult{}, errors.New("token login requires IDENTITY_PROVIDER=keycloak")
}

func (auth *BasicIdentityProvider) CreateAccount(args NewAccount) (uuid.UUID, error) {
	if !schema.ValidKind(args.Kind) {
		return uuid.Nil, ErrInvalidKind
	}

	hashedPwd, err := hashPassword(args.Password)
	if err != nil {
		return uuid.Nil, err
	}

	account := schema.Account{
		Id:        uuid.New(),
		Email:     args.Email,
		FirstName: args.FirstName,
		LastName:  args.LastName,
		Kind:      args.Kind,
		Password:  hashedPwd,
	}

	if err := createAccountInDb(auth.db, account); err != nil {
		return uuid.Nil, fmt.Errorf("error creating new account: %w", err)
	}

	return account.Id, nil
}

func (auth *BasicIdentityProvider) CheckPassword(ctx context.Context, account schema.Account, password string) error {
	if err := bcrypt.CompareHashAndPassword(account.Password, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
