package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/onegate/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestSharedTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  SharedToken
		input   string
		wantErr error
	}{
		{name: "empty stored token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "empty input denied", stored: "abc", input: "", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.stored.Validate(tc.input); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
	}
	for header, want := range cases {
		got, err := BearerToken(header)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err=%v", header, got, err)
		}
	}
	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer"} {
		if _, err := BearerToken(header); !errors.Is(err, ErrMissingToken) {
			t.Fatalf("%q: expected ErrMissingToken, got %v", header, err)
		}
	}
}

func TestRequireBearer(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/links", RequireBearer(SharedToken("secret")), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	for header, want := range map[string]int{
		"":              http.StatusUnauthorized,
		"Bearer wrong":  http.StatusUnauthorized,
		"Bearer secret": http.StatusAccepted,
	} {
		req := httptest.NewRequest(http.MethodPost, "/links", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("%q: expected %d, got %d", header, want, rec.Code)
		}
	}
}

func TestValidatorFunc(t *testing.T) {
	testlog.Start(t)
	v := ValidatorFunc(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	if err := v.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := v.Validate("ok"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}
