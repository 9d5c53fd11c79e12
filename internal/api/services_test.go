package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateService(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/projects", `{"slug":"shop"}`)

	w := env.do(t, http.MethodPost, "/api/projects/1/services", `{"slug":"web"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var svc ServiceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &svc))
	assert.Equal(t, int64(1), svc.ProjectID)
	assert.Equal(t, "web", svc.Slug)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"duplicate slug", "/api/projects/1/services", `{"slug":"web"}`, http.StatusConflict},
		{"missing project", "/api/projects/9/services", `{"slug":"web"}`, http.StatusNotFound},
		{"empty slug", "/api/projects/1/services", `{"slug":""}`, http.StatusBadRequest},
		{"bad project id", "/api/projects/x/services", `{"slug":"api"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRenameService(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/projects", `{"slug":"shop"}`)
	env.do(t, http.MethodPost, "/api/projects/1/services", `{"slug":"web"}`)
	env.do(t, http.MethodPost, "/api/projects/1/services", `{"slug":"api"}`)

	w := env.do(t, http.MethodPatch, "/api/services/1", `{"slug":"web-2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var svc ServiceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &svc))
	assert.Equal(t, "web-2", svc.Slug)

	got, err := env.store.GetService(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "web-2", got.Slug)

	w = env.do(t, http.MethodPatch, "/api/services/1", `{"slug":"api"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPatch, "/api/services/7", `{"slug":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
