package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	tests := []struct {
		env       string
		wantStack bool
	}{
		{env: "development", wantStack: true},
		{env: "production", wantStack: false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			handler := Recover(zerolog.New(&buf), tt.env)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic("nil map write")
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			var body struct {
				Message string `json:"message"`
				Stack   string `json:"stack"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, "Something went wrong", body.Message)
			require.Equal(t, tt.wantStack, body.Stack != "")
			require.NotContains(t, body.Message, "nil map write")

			require.Contains(t, buf.String(), "recovered from panic")
			require.Contains(t, buf.String(), "nil map write")
		})
	}
}

func TestRecoverRepanicsOnAbort(t *testing.T) {
	handler := Recover(zerolog.Nop(), "production")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
