package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinkhouse/league-system/brackets"
	"github.com/rinkhouse/league-system/repositories"
	"github.com/rinkhouse/league-system/services"
)

func TestMapServiceErrorToHTTP(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{"tournament not found", repositories.ErrTournamentNotFound, http.StatusNotFound},
		{"match not found", repositories.ErrMatchNotFound, http.StatusNotFound},
		{"validation", services.ErrValidationFailed, http.StatusBadRequest},
		{"tied score", services.ErrTiedScore, http.StatusBadRequest},
		{"not enough teams", brackets.ErrNotEnoughTeams, http.StatusBadRequest},
		{"duplicate seed wrapped", brackets.ErrDuplicateSeed, http.StatusBadRequest},
		{"transfer target", services.ErrTransferTargetNotAdmin, http.StatusBadRequest},
		{"terminal match", services.ErrMatchAlreadyTerminal, http.StatusConflict},
		{"bracket exists", services.ErrBracketAlreadyExists, http.StatusConflict},
		{"not in progress", services.ErrTournamentNotInProgress, http.StatusConflict},
		{"bad transition", services.ErrInvalidStatusTransition, http.StatusConflict},
		{"name conflict", repositories.ErrTournamentNameConflict, http.StatusConflict},
		{"insufficient role", services.ErrInsufficientRole, http.StatusForbidden},
		{"owner protected", services.ErrCannotRemoveOwner, http.StatusForbidden},
		{"bad credentials", services.ErrAuthInvalidCredentials, http.StatusUnauthorized},
		{"inconsistent bracket", services.ErrBracketInconsistent, http.StatusInternalServerError},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			mapServiceErrorToHTTP(rec, req, tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestReadJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	newReq := func(body string) (*httptest.ResponseRecorder, *http.Request) {
		return httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}

	t.Run("valid body", func(t *testing.T) {
		w, r := newReq(`{"name": "Winter Cup"}`)
		var dst payload
		require.NoError(t, readJSON(w, r, &dst))
		assert.Equal(t, "Winter Cup", dst.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		w, r := newReq("")
		var dst payload
		err := readJSON(w, r, &dst)
		assert.EqualError(t, err, "body must not be empty")
	})

	t.Run("malformed body", func(t *testing.T) {
		w, r := newReq(`{"name": `)
		var dst payload
		assert.Error(t, readJSON(w, r, &dst))
	})

	t.Run("unknown field", func(t *testing.T) {
		w, r := newReq(`{"surprise": true}`)
		var dst payload
		err := readJSON(w, r, &dst)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown key")
	})

	t.Run("wrong type", func(t *testing.T) {
		w, r := newReq(`{"name": 12}`)
		var dst payload
		err := readJSON(w, r, &dst)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "incorrect JSON type")
	})

	t.Run("trailing value", func(t *testing.T) {
		w, r := newReq(`{"name": "a"}{"name": "b"}`)
		var dst payload
		err := readJSON(w, r, &dst)
		assert.EqualError(t, err, "body must only contain a single JSON value")
	})
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	err := writeJSON(rec, http.StatusCreated, jsonResponse{"id": 7}, http.Header{"X-Request-Id": []string{"abc"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))
	assert.Contains(t, rec.Body.String(), `"id": 7`)
}
