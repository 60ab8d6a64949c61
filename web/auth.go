package web

import (
	"net/http"

	"github.com/cyclopcam/logs"
	"github.com/goji/httpauth"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	sessionName = "image-classifier"
	sessionAuth = "authenticated"
)

type AuthMiddleware struct {
	log   logs.Log
	store *sessions.CookieStore
	opts  httpauth.AuthOptions
}

// Setup new middleware for authenticating requests against the given user name and password.
// Session keys are generated at startup so sessions do not survive a restart.
func NewAuthMiddleware(log logs.Log, user, password string) *AuthMiddleware {
	hashKey := securecookie.GenerateRandomKey(32)
	blockKey := securecookie.GenerateRandomKey(32)
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{Path: "/", MaxAge: 86400, HttpOnly: true}
	return &AuthMiddleware{
		log:   log,
		store: store,
		opts:  httpauth.AuthOptions{Realm: "Restricted", User: user, Password: password},
	}
}

// If the session cookie is not present then use basic auth to login and start a session.
func (mw *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session, err := mw.store.Get(r, sessionName); err == nil {
			if ok, _ := session.Values[sessionAuth].(bool); ok {
				next.ServeHTTP(w, r)
				return
			}
		}
		httpauth.BasicAuth(mw.opts)(mw.startSession(next)).ServeHTTP(w, r)
	})
}

func (mw *AuthMiddleware) startSession(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get returns a new session if the existing cookie cannot be decoded
		session, _ := mw.store.Get(r, sessionName)
		session.Values[sessionAuth] = true
		if err := session.Save(r, w); err != nil {
			mw.log.Errorf("error saving session: %v", err)
		}
		h.ServeHTTP(w, r)
	})
}
