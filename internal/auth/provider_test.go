package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/authgate/internal/model"
)

type stubProvider struct {
	name string
}

func (p *stubProvider) GetLoginURL(state string) string {
	return "https://example.com/auth?state=" + state
}

func (p *stubProvider) ExchangeCode(ctx context.Context, code string) (*model.VerifiedIdentity, error) {
	return &model.VerifiedIdentity{ProviderName: p.name, ProviderUserID: "sub", Email: "a@x.com"}, nil
}

var _ IdentityProvider = (*stubProvider)(nil)

func TestProviderRegistry_Lookup(t *testing.T) {
	registry := NewProviderRegistry()
	google := &stubProvider{name: "google"}
	registry.Register("google", google)

	got, err := registry.Lookup("google")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != google {
		t.Error("Lookup() returned different provider than registered")
	}
}

func TestProviderRegistry_Lookup_Unknown(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register("google", &stubProvider{name: "google"})

	_, err := registry.Lookup("facebook")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnsupportedProvider {
		t.Fatalf("Lookup() error = %v, want UNSUPPORTED_PROVIDER", err)
	}
}

func TestProviderRegistry_Names(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register("google", &stubProvider{name: "google"})
	registry.Register("github", &stubProvider{name: "github"})

	names := registry.Names()
	if len(names) != 2 {
		t.Fatalf("Names() returned %d entries, want 2", len(names))
	}
}
