package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Page != 1 {
		t.Fatalf("expected page 1, got %d", params.Page)
	}
	if params.Limit != DefaultLimit {
		t.Fatalf("expected limit %d, got %d", DefaultLimit, params.Limit)
	}
	if params.Offset() != 0 {
		t.Fatalf("expected offset 0, got %d", params.Offset())
	}
}

func TestParseExplicitValues(t *testing.T) {
	values := url.Values{"page": []string{"3"}, "limit": []string{"25"}}

	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Page != 3 || params.Limit != 25 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if params.Offset() != 50 {
		t.Fatalf("expected offset 50, got %d", params.Offset())
	}
}

func TestParseCapsLimit(t *testing.T) {
	values := url.Values{"limit": []string{"500"}}

	params, err := Parse(values, Options{MaxLimit: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Limit != 100 {
		t.Fatalf("expected capped limit 100, got %d", params.Limit)
	}
}

func TestParseInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		values url.Values
		want   error
	}{
		{"non-numeric page", url.Values{"page": []string{"abc"}}, ErrInvalidPage},
		{"zero page", url.Values{"page": []string{"0"}}, ErrInvalidPage},
		{"negative page", url.Values{"page": []string{"-2"}}, ErrInvalidPage},
		{"non-numeric limit", url.Values{"limit": []string{"lots"}}, ErrInvalidLimit},
		{"zero limit", url.Values{"limit": []string{"0"}}, ErrInvalidLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.values, Options{}); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseCustomDefaultLimit(t *testing.T) {
	params, err := Parse(url.Values{}, Options{DefaultLimit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", params.Limit)
	}

	params, err = Parse(url.Values{}, Options{DefaultLimit: 250, MaxLimit: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Limit != 100 {
		t.Fatalf("expected default clamped to 100, got %d", params.Limit)
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/orders?page=2&limit=5", nil)

	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Page != 2 || params.Limit != 5 {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestContextRoundTrip(t *testing.T) {
	params := Params{Page: 4, Limit: 15}
	ctx := WithParams(nil, params)

	got, ok := FromContext(ctx)
	if !ok || got != params {
		t.Fatalf("expected %+v from context, got %+v (ok=%v)", params, got, ok)
	}

	fallback := FromContextOrDefault(nil)
	if fallback.Page != 1 || fallback.Limit != DefaultLimit {
		t.Fatalf("unexpected fallback params: %+v", fallback)
	}
}
