package pagination

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseOffsetDefaults(t *testing.T) {
	params, err := ParseOffset(url.Values{}, OffsetOptions{DefaultLimit: 10, MaxLimit: 100})
	if err != nil {
		t.Fatalf("ParseOffset returned error: %v", err)
	}
	if params.Page != DefaultPageNumber {
		t.Fatalf("expected default page %d got %d", DefaultPageNumber, params.Page)
	}
	if params.Limit != 10 {
		t.Fatalf("expected default limit 10 got %d", params.Limit)
	}
	if params.Offset() != 0 {
		t.Fatalf("expected zero offset got %d", params.Offset())
	}
}

func TestParseOffsetValues(t *testing.T) {
	values := url.Values{}
	values.Set("page", "3")
	values.Set("limit", "25")

	params, err := ParseOffset(values, OffsetOptions{DefaultLimit: 10, MaxLimit: 100})
	if err != nil {
		t.Fatalf("ParseOffset returned error: %v", err)
	}
	if params.Page != 3 {
		t.Fatalf("expected page 3 got %d", params.Page)
	}
	if params.Limit != 25 {
		t.Fatalf("expected limit 25 got %d", params.Limit)
	}
	if params.Offset() != 50 {
		t.Fatalf("expected offset 50 got %d", params.Offset())
	}
}

func TestParseOffsetClampsLimit(t *testing.T) {
	values := url.Values{}
	values.Set("limit", "500")

	params, err := ParseOffset(values, OffsetOptions{DefaultLimit: 10, MaxLimit: 100})
	if err != nil {
		t.Fatalf("ParseOffset returned error: %v", err)
	}
	if params.Limit != 100 {
		t.Fatalf("expected limit clamped to 100 got %d", params.Limit)
	}
}

func TestParseOffsetInvalid(t *testing.T) {
	values := url.Values{}
	values.Set("page", "abc")
	if _, err := ParseOffset(values, OffsetOptions{}); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage got %v", err)
	}

	values = url.Values{}
	values.Set("page", "0")
	if _, err := ParseOffset(values, OffsetOptions{}); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage for zero got %v", err)
	}

	values = url.Values{}
	values.Set("limit", "-5")
	if _, err := ParseOffset(values, OffsetOptions{}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize got %v", err)
	}
}
