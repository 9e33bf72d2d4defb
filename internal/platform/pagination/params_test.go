package pagination

import (
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
)

func TestParseDefaultsWhenEmpty(t *testing.T) {
	params, err := Parse(url.Values{}, Options{DefaultPageSize: 20, MaxPageSize: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != 20 {
		t.Fatalf("expected default page size 20, got %d", params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty token, got %q", params.PageToken)
	}
}

func TestParseClampsOversizedPageSize(t *testing.T) {
	values := url.Values{"pageSize": {"500"}}
	params, err := Parse(values, Options{DefaultPageSize: 20, MaxPageSize: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != 100 {
		t.Fatalf("expected clamp to 100, got %d", params.PageSize)
	}
}

func TestParseRejectsBadPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-5"} {
		values := url.Values{"pageSize": {raw}}
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize=%q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestParseAcceptsRepositoryToken(t *testing.T) {
	token := base64.RawURLEncoding.EncodeToString([]byte(`{"ID":"book-1"}`))
	values := url.Values{"pageToken": {token}}

	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("expected token passed through, got %q", params.PageToken)
	}
}

func TestParseRejectsMalformedToken(t *testing.T) {
	values := url.Values{"pageToken": {"not base64!!"}}
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestParseDefaultNeverExceedsMax(t *testing.T) {
	params, err := Parse(url.Values{}, Options{DefaultPageSize: 80, MaxPageSize: 25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != 25 {
		t.Fatalf("expected default lowered to max 25, got %d", params.PageSize)
	}
}
