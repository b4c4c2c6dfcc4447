package app

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"wayfinder.transitlab.org/internal/transit"
)

func TestRequestHasInvalidAPIKeyNoKeysConfigured(t *testing.T) {
	application := &Application{}

	r := httptest.NewRequest("GET", "/api/where/current-time", nil)
	assert.False(t, application.RequestHasInvalidAPIKey(r))
}

func TestRequestHasInvalidAPIKey(t *testing.T) {
	application := &Application{
		Config: transit.Config{APIKeys: map[string]string{"web": "secret"}},
	}

	r := httptest.NewRequest("GET", "/api/where/current-time", nil)
	assert.True(t, application.RequestHasInvalidAPIKey(r), "missing key is rejected")

	r = httptest.NewRequest("GET", "/api/where/current-time?key=wrong", nil)
	assert.True(t, application.RequestHasInvalidAPIKey(r))

	r = httptest.NewRequest("GET", "/api/where/current-time?key=secret", nil)
	assert.False(t, application.RequestHasInvalidAPIKey(r))
}

func TestIsInvalidAPIKey(t *testing.T) {
	application := &Application{
		Config: transit.Config{APIKeys: map[string]string{"a": "one", "b": "two"}},
	}

	assert.False(t, application.IsInvalidAPIKey("one"))
	assert.False(t, application.IsInvalidAPIKey("two"))
	assert.True(t, application.IsInvalidAPIKey("three"))
	assert.True(t, application.IsInvalidAPIKey(""))
}
