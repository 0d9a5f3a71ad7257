package config

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name: "missing database url",
			cfg: Config{
				AllowedOrigins: []string{"https://app.example.com"},
			},
			wantErr: ErrMissingDatabaseURL,
		},
		{
			name: "missing allowed origins",
			cfg: Config{
				DatabaseURL: "postgres://localhost/hoot",
			},
			wantErr: ErrMissingAllowedOrigins,
		},
		{
			name: "invalid callback url",
			cfg: Config{
				DatabaseURL:      "postgres://localhost/hoot",
				AllowedOrigins:   []string{"https://app.example.com"},
				OAuthCallbackURL: "/relative/path",
			},
			wantErr: ErrInvalidCallbackURL,
		},
		{
			name: "valid",
			cfg: Config{
				DatabaseURL:      "postgres://localhost/hoot",
				AllowedOrigins:   []string{"https://app.example.com"},
				OAuthCallbackURL: "https://gateway.example.com/oauth/callback",
			},
			wantErr: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.com , https://b.com ,,")
	want := []string{"https://a.com", "https://b.com"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
