package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// GET /: all known users
func (a *App) homeHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("list users failed")
		a.renderHome(w, r, http.StatusInternalServerError, "Home", nil, "Could not load users: "+userMessage(err))
		return
	}
	a.renderHome(w, r, http.StatusOK, "Home", users, "")
}

// GET + POST /user, GET /user/{name}: register (POST) and show tweets.
// Every failure ends up as a message on the page.
func (a *App) userHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" {
		name = r.FormValue("user_name")
	}
	name = normalizeHandle(name)

	if name == "" {
		a.renderUser(w, r, "User", nil, "Enter a Twitter handle to look up.")
		return
	}

	message := ""
	if r.Method == http.MethodPost {
		res, err := a.syncer.AddOrUpdateUser(r.Context(), name)
		if err != nil {
			a.renderUser(w, r, name, nil, fmt.Sprintf("Error adding %s: %s", name, userMessage(err)))
			return
		}
		message = fmt.Sprintf("User %s successfully added! %d new tweets.", res.User.Name, res.Inserted)
	}

	tweets, err := a.store.TweetsFor(r.Context(), name)
	if err != nil {
		a.log.Info().Str("user", name).Str("kind", errorKind(err)).Err(err).Msg("lookup failed")
		a.renderUser(w, r, name, nil, fmt.Sprintf("Error loading %s: %s", name, userMessage(err)))
		return
	}
	a.renderUser(w, r, name, tweets, message)
}

// GET /reset: drop every user and tweet
func (a *App) resetHandler(w http.ResponseWriter, r *http.Request) {
	if hash := a.config.ResetTokenHash; hash != "" && !checkToken(hash, r.URL.Query().Get("token")) {
		a.log.Warn().Msg("reset refused, bad token")
		users, _ := a.store.ListUsers(r.Context())
		a.renderHome(w, r, http.StatusForbidden, "Reset", users, "Reset refused: a valid token is required.")
		return
	}

	if err := a.store.Reset(r.Context()); err != nil {
		a.log.Error().Err(err).Msg("reset failed")
		a.renderHome(w, r, http.StatusInternalServerError, "Reset", nil, "Reset failed: "+userMessage(err))
		return
	}

	a.addFlash(w, r, "All users and tweets were deleted")
	a.renderHome(w, r, http.StatusOK, "Reset", []User{}, "")
}

// GET /update: refetch every known user
func (a *App) updateHandler(w http.ResponseWriter, r *http.Request) {
	results, err := a.syncer.UpdateAllUsers(r.Context())

	inserted := 0
	for _, res := range results {
		inserted += res.Inserted
	}
	message := fmt.Sprintf("Updated %d users, %d new tweets.", len(results), inserted)
	if err != nil {
		a.log.Warn().Err(err).Msg("update finished with errors")
		message += " Some users could not be updated: " + userMessage(err)
	}

	users, lerr := a.store.ListUsers(r.Context())
	if lerr != nil {
		a.log.Error().Err(lerr).Msg("list users failed")
	}
	a.renderHome(w, r, http.StatusOK, "Update", users, message)
}

// GET /healthz
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		http.Error(w, "database ping failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (a *App) renderHome(w http.ResponseWriter, r *http.Request, status int, title string, users []User, message string) {
	views := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		views = append(views, userView(u))
	}
	summary := ""
	if nUsers, nTweets, err := a.store.Counts(r.Context()); err == nil {
		summary = fmt.Sprintf("%d users, %d tweets stored.", nUsers, nTweets)
	} else {
		a.log.Warn().Err(err).Msg("count failed")
	}
	a.renderTemplate(w, r, status, "home.html", map[string]interface{}{
		"title":   title,
		"users":   views,
		"message": message,
		"summary": summary,
	})
}

// renderUser always answers 200: lookup problems are shown, not raised.
func (a *App) renderUser(w http.ResponseWriter, r *http.Request, title string, tweets []Tweet, message string) {
	views := make([]map[string]interface{}, 0, len(tweets))
	for _, t := range tweets {
		views = append(views, tweetView(t))
	}
	a.renderTemplate(w, r, http.StatusOK, "user.html", map[string]interface{}{
		"title":   title,
		"tweets":  views,
		"message": message,
	})
}
