package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"thesis_tracker/tracker/auth"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/utils"
	"thesis_tracker/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccountService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *AccountService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Get("/login", s.LoginWithEmail)
		r.Post("/login-with-token", s.LoginWithToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/info", s.Info)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Get("/list", s.List)
		r.Post("/create", s.Create)
		r.Get("/{account_id}", s.Get)
	})

	return r
}

type loginResponse struct {
	AccountId   uuid.UUID `json:"account_id"`
	Kind        string    `json:"kind"`
	AccessToken string    `json:"access_token"`
}

func (s *AccountService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		utils.WriteError(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrAccountNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		}
		utils.WriteError(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	slog.Info("account logged in", "account_id", login.AccountId, "kind", login.Kind, "code", logging.ACCOUNT_LOGIN)

	utils.WriteJsonResponse(w, loginResponse{AccountId: login.AccountId, Kind: login.Kind, AccessToken: login.AccessToken})
}

type loginWithTokenRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

func (s *AccountService) LoginWithToken(w http.ResponseWriter, r *http.Request) {
	var params loginWithTokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	login, err := s.userAuth.LoginWithToken(params.AccessToken)
	if err != nil {
		responseCode := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidCredentials) {
			responseCode = http.StatusUnauthorized
		}
		utils.WriteError(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{AccountId: login.AccountId, Kind: login.Kind, AccessToken: login.AccessToken})
}

type accountDetail struct {
	Id        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Kind      string    `json:"kind"`
	Grade     *float64  `json:"grade,omitempty"`
	Remarks   string    `json:"remarks,omitempty"`
}

func convertAccountDetail(account schema.Account) accountDetail {
	return accountDetail{
		Id:        account.Id,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		Kind:      account.Kind,
		Grade:     account.Grade,
		Remarks:   account.Remarks,
	}
}

func (s *AccountService) Info(w http.ResponseWriter, r *http.Request) {
	account, ok := requestAccount(w, r)
	if !ok {
		return
	}

	utils.WriteJsonResponse(w, convertAccountDetail(account))
}

func (s *AccountService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db.Order("last_name ASC").Order("first_name ASC")
	if kind := r.URL.Query().Get("kind"); kind != "" {
		if !schema.ValidKind(kind) {
			utils.WriteError(w, auth.ErrInvalidKind.Error(), http.StatusBadRequest)
			return
		}
		query = query.Where("kind = ?", kind)
	}

	var accounts []schema.Account
	result := query.Find(&accounts)
	if result.Error != nil {
		slog.Error("sql error listing accounts", "error", result.Error)
		utils.WriteError(w, fmt.Sprintf("error listing accounts: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	res := make([]accountDetail, 0, len(accounts))
	for _, account := range accounts {
		res = append(res, convertAccountDetail(account))
	}

	utils.WriteJsonResponse(w, res)
}

func (s *AccountService) Get(w http.ResponseWriter, r *http.Request) {
	accountId, err := utils.URLParamUUID(r, "account_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := schema.GetAccount(accountId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrAccountNotFound) {
			utils.WriteError(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertAccountDetail(account))
}

type createAccountRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Kind      string `json:"kind" validate:"required,oneof=student faculty administrator"`
	Password  string `json:"password" validate:"required,min=8"`
}

func (s *AccountService) Create(w http.ResponseWriter, r *http.Request) {
	var params createAccountRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	accountId, err := s.userAuth.CreateAccount(auth.NewAccount{
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Kind:      params.Kind,
		Password:  params.Password,
	})
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrEmailAlreadyInUse):
			responseCode = http.StatusConflict
		case errors.Is(err, auth.ErrInvalidKind):
			responseCode = http.StatusBadRequest
		}
		utils.WriteError(w, err.Error(), responseCode)
		return
	}

	account, err := schema.GetAccount(accountId, s.db)
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error loading new account: %v", err), http.StatusInternalServerError)
		return
	}

	slog.Info("created account", "account_id", account.Id, "kind", account.Kind, "code", logging.ACCOUNT_CREATE)

	utils.WriteCreated(w, fmt.Sprintf("%v/account/%v", ApiPrefix, account.Id), convertAccountDetail(account))
}
