package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/utils"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const keycloakClientId = "thesis-tracker-login"

type KeycloakIdentityProvider struct {
	keycloak *gocloak.GoCloak
	db       *gorm.DB
	auditLog AuditLogger

	realm                        string
	adminUsername, adminPassword string
}

type KeycloakArgs struct {
	KeycloakServerUrl string
	Realm             string

	KeycloakAdminUsername string
	KeycloakAdminPassword string

	AdminEmail    string
	AdminPassword string

	PublicHostname string
	SkipTlsVerify  bool
}

func isConflict(err error) bool {
	var apiErr *gocloak.APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

func ptr[T any](value T) *T {
	return &value
}

func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 5*time.Second)
}

// realmAdmin performs admin api calls against a single realm with a token
// obtained from the master realm.
type realmAdmin struct {
	client *gocloak.GoCloak
	token  string
	realm  string
}

func newRealmAdmin(client *gocloak.GoCloak, realm, username, password string) (*realmAdmin, error) {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	token, err := client.LoginAdmin(ctx, username, password, "master")
	if err != nil {
		return nil, fmt.Errorf("keycloak admin login failed: %w", err)
	}
	return &realmAdmin{client: client, token: token.AccessToken, realm: realm}, nil
}

// bootstrap makes sure the realm, one realm role per account kind, and the
// public login client exist. Every step tolerates objects created earlier.
func (a *realmAdmin) bootstrap(publicHostname string) error {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	_, err := a.client.CreateRealm(ctx, a.token, gocloak.RealmRepresentation{
		Realm:                &a.realm,
		Enabled:              ptr(true),
		RegistrationAllowed:  ptr(false),
		ResetPasswordAllowed: ptr(true),
		AccessTokenLifespan:  ptr(1500),
		BruteForceProtected:  ptr(true),
		PasswordPolicy:       ptr("length(8)"),
	})
	if err != nil && !isConflict(err) {
		return fmt.Errorf("unable to create realm %v: %w", a.realm, err)
	}

	for _, kind := range []string{schema.Student, schema.Faculty, schema.Administrator} {
		if _, err := a.client.CreateRealmRole(ctx, a.token, a.realm, gocloak.Role{Name: ptr(kind)}); err != nil && !isConflict(err) {
			return fmt.Errorf("unable to create realm role %v: %w", kind, err)
		}
	}

	existing, err := a.client.GetClients(ctx, a.token, a.realm, gocloak.GetClientsParams{ClientID: ptr(keycloakClientId)})
	if err != nil {
		return fmt.Errorf("unable to list realm clients: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	origins := []string{
		fmt.Sprintf("https://%v/*", publicHostname),
		fmt.Sprintf("http://%v/*", publicHostname),
		"http://localhost/*",
	}
	_, err = a.client.CreateClient(ctx, a.token, a.realm, gocloak.Client{
		ClientID:                  ptr(keycloakClientId),
		Enabled:                   ptr(true),
		PublicClient:              ptr(true),
		RedirectURIs:              &origins,
		WebOrigins:                &origins,
		DirectAccessGrantsEnabled: ptr(true), // password grant backs X-Confirm-Password
		StandardFlowEnabled:       ptr(true),
		ImplicitFlowEnabled:       ptr(false),
		DefaultClientScopes:       &[]string{"openid", "profile", "email", "roles"},
	})
	if err != nil && !isConflict(err) {
		return fmt.Errorf("unable to create login client: %w", err)
	}
	return nil
}

// createUser registers the user with the realm role matching its kind. If the
// email is taken the existing user id is returned with ErrEmailAlreadyInUse.
func (a *realmAdmin) createUser(args NewAccount) (uuid.UUID, error) {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	users, err := a.client.GetUsers(ctx, a.token, a.realm, gocloak.GetUsersParams{
		Email: &args.Email,
		Exact: ptr(true),
		Max:   ptr(1),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("unable to look up user %v: %w", args.Email, err)
	}
	if len(users) > 0 && users[0].ID != nil {
		id, err := parseKeycloakId(*users[0].ID)
		if err != nil {
			return uuid.Nil, err
		}
		return id, ErrEmailAlreadyInUse
	}

	userId, err := a.client.CreateUser(ctx, a.token, a.realm, gocloak.User{
		Username:      &args.Email,
		Email:         &args.Email,
		FirstName:     &args.FirstName,
		LastName:      &args.LastName,
		Enabled:       ptr(true),
		EmailVerified: ptr(true),
		Credentials: &[]gocloak.CredentialRepresentation{
			{Type: ptr("password"), Value: &args.Password, Temporary: ptr(false)},
		},
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("unable to create keycloak user: %w", err)
	}

	role, err := a.client.GetRealmRole(ctx, a.token, a.realm, args.Kind)
	if err != nil {
		return uuid.Nil, fmt.Errorf("unable to load realm role %v: %w", args.Kind, err)
	}
	if err := a.client.AddRealmRoleToUser(ctx, a.token, a.realm, userId, []gocloak.Role{*role}); err != nil {
		return uuid.Nil, fmt.Errorf("unable to grant realm role %v: %w", args.Kind, err)
	}

	return parseKeycloakId(userId)
}

func parseKeycloakId(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("keycloak returned malformed user id %q: %w", id, err)
	}
	return parsed, nil
}

func NewKeycloakIdentityProvider(db *gorm.DB, auditLog AuditLogger, args KeycloakArgs) (IdentityProvider, error) {
	client := gocloak.NewClient(args.KeycloakServerUrl)
	if args.SkipTlsVerify {
		client.RestyClient().SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	admin, err := newRealmAdmin(client, args.Realm, args.KeycloakAdminUsername, args.KeycloakAdminPassword)
	if err != nil {
		return nil, err
	}
	if err := admin.bootstrap(args.PublicHostname); err != nil {
		slog.Error("keycloak realm bootstrap failed", "realm", args.Realm, "error", err)
		return nil, err
	}

	adminId, err := admin.createUser(NewAccount{
		Email:     args.AdminEmail,
		FirstName: "Admin",
		LastName:  "Admin",
		Kind:      schema.Administrator,
		Password:  args.AdminPassword,
	})
	if err != nil && !errors.Is(err, ErrEmailAlreadyInUse) {
		slog.Error("unable to create initial keycloak admin", "error", err)
		return nil, err
	}

	if err := addInitialAdminToDb(db, adminId, args.AdminEmail, nil); err != nil {
		return nil, err
	}
	slog.Info("keycloak identity provider ready", "realm", args.Realm, "server", args.KeycloakServerUrl)

	return &KeycloakIdentityProvider{
		keycloak:      client,
		db:            db,
		auditLog:      auditLog,
		realm:         args.Realm,
		adminUsername: args.KeycloakAdminUsername,
		adminPassword: args.KeycloakAdminPassword,
	}, nil
}

func getToken(r *http.Request) (string, error) {
	if token := jwtauth.TokenFromHeader(r); token != "" {
		return token, nil
	}
	if token := jwtauth.TokenFromCookie(r); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("unable to find auth token")
}

// kindFromToken reads the account kind from the realm roles of a keycloak
// access token. The token must already have been checked against keycloak.
func kindFromToken(accessToken string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return "", fmt.Errorf("unable to parse access token: %w", err)
	}

	realmAccess, ok := claims["realm_access"].(map[string]interface{})
	if !ok {
		return schema.Student, nil
	}
	rolesUntyped, _ := realmAccess["roles"].([]interface{})

	roles := make([]string, 0, len(rolesUntyped))
	for _, role := range rolesUntyped {
		if s, ok := role.(string); ok {
			roles = append(roles, s)
		}
	}

	for _, kind := range []string{schema.Administrator, schema.Faculty, schema.Student} {
		if slices.Contains(roles, kind) {
			return kind, nil
		}
	}
	return schema.Student, nil
}

func (auth *KeycloakIdentityProvider) userInfo(accessToken string) (uuid.UUID, *gocloak.UserInfo, error) {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	info, err := auth.keycloak.GetUserInfo(ctx, accessToken, auth.realm)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("unable to verify token with keycloak: %w", err)
	}
	if info.Sub == nil {
		return uuid.Nil, nil, fmt.Errorf("user identifier missing in keycloak response")
	}

	id, err := parseKeycloakId(*info.Sub)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return id, info, nil
}

func (auth *KeycloakIdentityProvider) middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token, err := getToken(r)
			if err != nil {
				utils.WriteError(w, err.Error(), http.StatusUnauthorized)
				return
			}

			accountId, _, err := auth.userInfo(token)
			if err != nil {
				utils.WriteError(w, err.Error(), http.StatusUnauthorized)
				return
			}

			account, err := schema.GetAccount(accountId, auth.db)
			if err != nil {
				if errors.Is(err, schema.ErrAccountNotFound) {
					utils.WriteError(w, "account not found, please log in again", http.StatusUnauthorized)
					return
				}
				utils.WriteError(w, fmt.Sprintf("unable to find account %v: %v", accountId, err), http.StatusInternalServerError)
				return
			}

			kind, err := kindFromToken(token)
			if err != nil || kind != account.Kind {
				utils.WriteError(w, "token role does not match account, please log in again", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, withAccount(r, account))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *KeycloakIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.middleware(), auth.auditLog.Middleware}
}

func (auth *KeycloakIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	token, err := auth.keycloak.Login(ctx, keycloakClientId, "", auth.realm, email, password)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	return auth.LoginWithToken(token.AccessToken)
}

// LoginWithToken creates the local account on first login.
func (auth *KeycloakIdentityProvider) LoginWithToken(accessToken string) (LoginResult, error) {
	accountId, info, err := auth.userInfo(accessToken)
	if err != nil {
		slog.Error("failed to get user info from keycloak", "error", err)
		return LoginResult{}, err
	}
	if info.Email == nil {
		return LoginResult{}, fmt.Errorf("invalid user info from keycloak, missing email")
	}

	kind, err := kindFromToken(accessToken)
	if err != nil {
		return LoginResult{}, err
	}

	var account schema.Account
	err = auth.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Limit(1).Find(&account, "id = ?", accountId)
		if result.Error != nil {
			slog.Error("sql error checking for existing keycloak account", "account_id", accountId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 1 {
			if account.Kind != kind {
				account.Kind = kind
				if err := txn.Model(&account).Update("kind", kind).Error; err != nil {
					slog.Error("sql error updating account kind", "account_id", accountId, "error", err)
					return schema.ErrDbAccessFailed
				}
			}
			return nil
		}

		account = schema.Account{Id: accountId, Email: *info.Email, Kind: kind}
		if info.GivenName != nil {
			account.FirstName = *info.GivenName
		}
		if info.FamilyName != nil {
			account.LastName = *info.FamilyName
		}
		if err := txn.Create(&account).Error; err != nil {
			slog.Error("sql error creating keycloak account", "error", err)
			return schema.ErrDbAccessFailed
		}
		return nil
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("error logging in account: %w", err)
	}

	return LoginResult{AccountId: account.Id, Kind: account.Kind, AccessToken: accessToken}, nil
}

func (auth *KeycloakIdentityProvider) CreateAccount(args NewAccount) (uuid.UUID, error) {
	if !schema.ValidKind(args.Kind) {
		return uuid.Nil, ErrInvalidKind
	}

	admin, err := newRealmAdmin(auth.keycloak, auth.realm, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return uuid.Nil, err
	}

	userUUID, err := admin.createUser(args)
	if err != nil {
		return uuid.Nil, err
	}

	account := schema.Account{Id: userUUID, Email: args.Email, FirstName: args.FirstName, LastName: args.LastName, Kind: args.Kind}
	if err := createAccountInDb(auth.db, account); err != nil {
		return uuid.Nil, fmt.Errorf("error creating new account: %w", err)
	}
	return userUUID, nil
}

// CheckPassword runs a password grant for the account against the realm.
func (auth *KeycloakIdentityProvider) CheckPassword(ctx context.Context, account schema.Account, password string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := auth.keycloak.Login(ctx, keycloakClientId, "", auth.realm, account.Email, password); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
