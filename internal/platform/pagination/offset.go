package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPageNumber is the page served when the client omits the page parameter.
const DefaultPageNumber = 1

// ErrInvalidPage indicates the page query parameter could not be parsed.
var ErrInvalidPage = errors.New("pagination: invalid page")

// OffsetParams carries page-number pagination values for offset-based listings.
type OffsetParams struct {
	Page  int
	Limit int
}

// Offset returns the number of documents to skip for the requested page.
func (p OffsetParams) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// OffsetOptions control limit defaults and caps for ParseOffset.
type OffsetOptions struct {
	DefaultLimit int
	MaxLimit     int
}

// ParseOffset reads page and limit query parameters, applying defaults and caps.
func ParseOffset(values url.Values, opts OffsetOptions) (OffsetParams, error) {
	if values == nil {
		values = url.Values{}
	}

	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageSize
	}
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxPageSize
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}

	params := OffsetParams{Page: DefaultPageNumber, Limit: defaultLimit}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return OffsetParams{}, fmt.Errorf("%w: must be an integer", ErrInvalidPage)
		}
		if page <= 0 {
			return OffsetParams{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPage)
		}
		params.Page = page
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return OffsetParams{}, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
		}
		if limit <= 0 {
			return OffsetParams{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
		}
		if limit > maxLimit {
			limit = maxLimit
		}
		params.Limit = limit
	}

	return params, nil
}
