package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var response APIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		requestHeader  string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "valid API key",
			requestHeader:  "test-key",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing API key header",
			requestHeader:  "",
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Missing X-API-Key header",
		},
		{
			name:           "invalid API key",
			requestHeader:  "wrong-key",
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Invalid API key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler := apiKeyMiddleware("test-key")(testHandler)

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.requestHeader != "" {
				req.Header.Set("X-API-Key", tt.requestHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, decodeResponse(t, w).Error)
			}
		})
	}
}

func TestSendSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	sendSuccess(w, map[string]string{"message": "test"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	response := decodeResponse(t, w)
	assert.True(t, response.Success)
	assert.Equal(t, map[string]interface{}{"message": "test"}, response.Data)
	assert.Empty(t, response.Error)
}

func TestSendError(t *testing.T) {
	for _, statusCode := range []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusNotFound,
		http.StatusInternalServerError,
	} {
		t.Run(http.StatusText(statusCode), func(t *testing.T) {
			w := httptest.NewRecorder()
			sendError(w, "something failed", statusCode)

			assert.Equal(t, statusCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			response := decodeResponse(t, w)
			assert.False(t, response.Success)
			assert.Nil(t, response.Data)
			assert.Equal(t, "something failed", response.Error)
		})
	}
}
