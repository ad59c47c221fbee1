package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"thesis_tracker/tracker/schema"
	"thesis_tracker/tracker/utils"
)

const ConfirmPasswordHeader = "X-Confirm-Password"

// KindOnly admits only accounts whose kind is listed.
func KindOnly(kinds ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			account, err := AccountFromContext(r)
			if err != nil {
				utils.WriteError(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !slices.Contains(kinds, account.Kind) {
				utils.WriteError(w, fmt.Sprintf("account %v (%v) is not allowed to access this endpoint", account.Id, account.Kind), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func AdminOnly() func(http.Handler) http.Handler {
	return KindOnly(schema.Administrator)
}

// RequirePassword asks the identity provider to confirm the password sent in
// the X-Confirm-Password header.
func RequirePassword(provider IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			account, err := AccountFromContext(r)
			if err != nil {
				utils.WriteError(w, err.Error(), http.StatusInternalServerError)
				return
			}

			password := r.Header.Get(ConfirmPasswordHeader)
			if password == "" {
				utils.WriteError(w, fmt.Sprintf("missing %v header", ConfirmPasswordHeader), http.StatusUnauthorized)
				return
			}

			if err := provider.CheckPassword(r.Context(), account, password); err != nil {
				slog.Info("password confirmation failed", "account_id", account.Id, "error", err)
				utils.WriteError(w, "password confirmation failed", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
