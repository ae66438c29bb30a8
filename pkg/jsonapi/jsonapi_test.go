package jsonapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestWriteDocument(t *testing.T) {
	w := httptest.NewRecorder()
	doc := NewDocument().DataResource(NewResource("foundations", "east").Attr("orgs", 3).Build()).Build()

	WriteDocument(w, http.StatusOK, doc)

	if w.Header().Get("Content-Type") != ContentType {
		t.Errorf("Content-Type = %v, want %v", w.Header().Get("Content-Type"), ContentType)
	}
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var result struct {
		Data Resource `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if result.Data.Type != "foundations" || result.Data.ID != "east" {
		t.Errorf("Data = %+v", result.Data)
	}
	if result.Data.Attributes["orgs"] != float64(3) {
		t.Errorf("Attributes = %v", result.Data.Attributes)
	}
}

func TestWriteCollection_Empty(t *testing.T) {
	w := httptest.NewRecorder()

	WriteCollection(w, http.StatusOK, nil, nil)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if string(raw["data"]) != "[]" {
		t.Errorf("data = %s, want []", raw["data"])
	}
}

func TestWriteCollection_Paginated(t *testing.T) {
	w := httptest.NewRecorder()
	p := NewPagination(5, 2, 2, "/api/v1/foundations/east/orgs")

	WriteCollection(w, http.StatusOK, []Resource{{Type: "organizations", ID: "o3"}}, p)

	var doc Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if doc.Meta["total"] != float64(5) || doc.Meta["pages"] != float64(3) {
		t.Errorf("Meta = %v", doc.Meta)
	}
	if doc.Links == nil || doc.Links.Next == "" || doc.Links.Prev == "" {
		t.Errorf("Links = %+v", doc.Links)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		errs       []Error
		wantStatus int
		wantCode   string
	}{
		{"invalid date", []Error{ErrInvalidDate("quarter", "quarter 5 out of range")}, 400, "invalid_date"},
		{"unknown foundation", []Error{ErrUnknownFoundation("south")}, 404, "unknown_foundation"},
		{"configuration", []Error{ErrConfiguration("east", "no usage_url")}, 500, "configuration_error"},
		{"upstream", []Error{ErrUpstream("east", 503)}, 502, "upstream_error"},
		{"upstream timeout", []Error{ErrUpstreamTimeout("east")}, 504, "upstream_timeout"},
		{"bad payload", []Error{ErrBadUpstreamPayload("missing app_usages")}, 502, "bad_upstream_payload"},
		{"refresh running", []Error{ErrRefreshInProgress()}, 409, "refresh_in_progress"},
		{"no errors", nil, 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.errs...)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			var doc Document
			if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
				t.Fatalf("Invalid JSON: %v", err)
			}
			if len(doc.Errors) != 1 || doc.Errors[0].Code != tt.wantCode {
				t.Errorf("Errors = %+v, want code %s", doc.Errors, tt.wantCode)
			}
			if doc.Data != nil {
				t.Error("error document carries data")
			}
		})
	}
}

func TestErrorBuilder(t *testing.T) {
	e := NewError(400, "invalid_date", "Invalid Date").
		Detailf("%d is not a quarter", 7).
		Parameter("quarter").
		ID("req-1").
		Meta("allowed", "1-4").
		Build()

	if e.StatusCode() != 400 || e.Detail != "7 is not a quarter" {
		t.Errorf("Error = %+v", e)
	}
	if e.Source == nil || e.Source.Parameter != "quarter" {
		t.Errorf("Source = %+v", e.Source)
	}
	if e.ID != "req-1" || e.Meta["allowed"] != "1-4" {
		t.Errorf("ID/Meta = %s/%v", e.ID, e.Meta)
	}
}

func TestWriteAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAccepted(w, Meta{"run_id": "run-1"})

	if w.Code != http.StatusAccepted {
		t.Errorf("Status = %d, want 202", w.Code)
	}
	var doc Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if doc.Meta["run_id"] != "run-1" {
		t.Errorf("Meta = %v", doc.Meta)
	}
}

func TestPagination(t *testing.T) {
	t.Run("normalizes inputs", func(t *testing.T) {
		p := NewPagination(100, 0, 0, "")
		if p.Page != 1 || p.PerPage != 50 {
			t.Errorf("Page/PerPage = %d/%d, want 1/50", p.Page, p.PerPage)
		}
	})

	t.Run("total pages", func(t *testing.T) {
		for _, tt := range []struct {
			total int64
			per   int
			want  int
		}{
			{0, 10, 1}, {1, 10, 1}, {10, 10, 1}, {11, 10, 2}, {95, 10, 10},
		} {
			if got := NewPagination(tt.total, 1, tt.per, "").TotalPages(); got != tt.want {
				t.Errorf("TotalPages(%d/%d) = %d, want %d", tt.total, tt.per, got, tt.want)
			}
		}
	})

	t.Run("window", func(t *testing.T) {
		for _, tt := range []struct {
			page, per, n       int
			wantStart, wantEnd int
		}{
			{1, 2, 5, 0, 2},
			{3, 2, 5, 4, 5},
			{4, 2, 5, 5, 5},
			{1, 10, 0, 0, 0},
		} {
			start, end := NewPagination(int64(tt.n), tt.page, tt.per, "").Window(tt.n)
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("Window(page %d) = [%d,%d), want [%d,%d)", tt.page, start, end, tt.wantStart, tt.wantEnd)
			}
		}
	})

	t.Run("links", func(t *testing.T) {
		links := NewPagination(30, 1, 10, "/orgs?sort=name").Links()
		if links.Prev != "" {
			t.Errorf("Prev = %s, want empty on first page", links.Prev)
		}
		u, err := url.Parse(links.Next)
		if err != nil {
			t.Fatal(err)
		}
		if u.Query().Get("page[number]") != "2" || u.Query().Get("sort") != "name" {
			t.Errorf("Next = %s", links.Next)
		}
		if NewPagination(30, 1, 10, "").Links().Self != "" {
			t.Error("links without a base URL should be empty")
		}
	})
}

func TestParsePaginationParams(t *testing.T) {
	tests := []struct {
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"", 1, 50},
		{"page[number]=3&page[size]=20", 3, 20},
		{"page=2&per_page=10", 2, 10},
		{"page[number]=0&page=4", 4, 50},
		{"page[size]=100000", 1, MaxPerPage},
		{"page=abc", 1, 50},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			page, perPage := ParsePaginationParams(q, 50)
			if page != tt.wantPage || perPage != tt.wantPerPage {
				t.Errorf("got %d/%d, want %d/%d", page, perPage, tt.wantPage, tt.wantPerPage)
			}
		})
	}
}
