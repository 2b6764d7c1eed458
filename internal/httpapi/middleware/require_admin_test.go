package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAdmin_AllowsAdminKey_BlocksPublicKey(t *testing.T) {
	keys := Keys{
		Public: []string{"pub_key"},
		Admin:  []string{"adm_key"},
	}

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"admin key", "X-API-Key", "adm_key", http.StatusOK},
		{"admin bearer", "Authorization", "Bearer adm_key", http.StatusOK},
		{"public key", "X-API-Key", "pub_key", http.StatusForbidden},
		{"missing key", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			RequireAdmin(keys)(okHandler()).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("want %d got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRequireAny(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}
	h := RequireAny(keys)(okHandler())

	for key, want := range map[string]int{"pub_key": 200, "adm_key": 200, "nope": 401, "": 401} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("key %q: want %d got %d", key, want, rec.Code)
		}
	}
}

func TestNoKeysConfigured_AllowsAll(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, mw := range []func(http.Handler) http.Handler{RequireAny(Keys{}), RequireAdmin(Keys{})} {
		rec := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200 got %d", rec.Code)
		}
	}
}
