package lexical

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/khojlabs/khoj/pkg/apierr"
)

func TestQueryBy(t *testing.T) {
	if got := QueryBy("dev"); got != "title_hi,summary_hi,content_hi" {
		t.Errorf("QueryBy(dev) = %q", got)
	}
	if got := QueryBy("roman"); got != "title_roman_norm,summary_roman_norm,content_roman_norm" {
		t.Errorf("QueryBy(roman) = %q", got)
	}
}

func TestCombineFilters(t *testing.T) {
	cases := []struct {
		client, auto, want string
	}{
		{"", "", ""},
		{"partner_label:=[`x`]", "", "partner_label:=[`x`]"},
		{"", "locations_norm:=[`bihar`]", "locations_norm:=[`bihar`]"},
		{"partner_label:=[`x`]", "locations_norm:=[`bihar`]", "(partner_label:=[`x`]) && (locations_norm:=[`bihar`])"},
	}
	for _, tc := range cases {
		if got := CombineFilters(tc.client, tc.auto); got != tc.want {
			t.Errorf("CombineFilters(%q, %q) = %q, want %q", tc.client, tc.auto, got, tc.want)
		}
	}
}

func TestSearch(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("X-TYPESENSE-API-KEY") != "test-key" {
			t.Errorf("missing api key header")
		}
		gotQuery = map[string]string{}
		for k, v := range r.URL.Query() {
			gotQuery[k] = v[0]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"found": 2,
			"hits": []map[string]interface{}{
				{"text_match": 1157451471441100921, "document": map[string]string{"id": "a42"}},
				{"text_match": 578730123365187705, "document": map[string]string{"id": "a17"}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "articles_v1", 5*time.Second)
	hits, err := c.Search(t.Context(), "asha workers bihar", "roman", "locations_norm:=[`bihar`]", 80)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	if gotPath != "/collections/articles_v1/documents/search" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery["q"] != "asha workers bihar" {
		t.Errorf("q = %q", gotQuery["q"])
	}
	if gotQuery["query_by"] != QueryBy("roman") {
		t.Errorf("query_by = %q", gotQuery["query_by"])
	}
	if gotQuery["query_by_weights"] != "6,3,1" {
		t.Errorf("query_by_weights = %q", gotQuery["query_by_weights"])
	}
	if gotQuery["per_page"] != "80" || gotQuery["page"] != "1" || gotQuery["num_typos"] != "1" {
		t.Errorf("paging params wrong: %v", gotQuery)
	}
	if gotQuery["filter_by"] != "locations_norm:=[`bihar`]" {
		t.Errorf("filter_by = %q", gotQuery["filter_by"])
	}

	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ArticleID != "a42" || hits[0].TextMatch <= hits[1].TextMatch {
		t.Errorf("hits wrong: %+v", hits)
	}
}

func TestSearchOmitsEmptyFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["filter_by"]; ok {
			t.Error("filter_by should be absent")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"found": 0, "hits": []interface{}{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "articles_v1", 5*time.Second)
	hits, err := c.Search(t.Context(), "q", "dev", "", 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits, want 0", len(hits))
	}
}

func TestSearchBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "articles_v1", 5*time.Second)
	_, err := c.Search(t.Context(), "q", "dev", "", 10)
	if !errors.Is(err, apierr.ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval", err)
	}
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	created := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/articles_v1":
			http.NotFound(w, r)
		case r.Method == http.MethodPost && r.URL.Path == "/collections":
			var schema map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&schema)
			if schema["name"] != "articles_v1" {
				t.Errorf("schema name = %v", schema["name"])
			}
			if schema["default_sorting_field"] != "published_ts" {
				t.Errorf("default_sorting_field = %v", schema["default_sorting_field"])
			}
			created = true
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "articles_v1", 5*time.Second)
	if err := c.EnsureCollection(t.Context()); err != nil {
		t.Fatalf("EnsureCollection() failed: %v", err)
	}
	if !created {
		t.Error("collection was not created")
	}
}

func TestEnsureCollectionExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			t.Error("must not create an existing collection")
		}
		_, _ = w.Write([]byte(`{"name":"articles_v1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "articles_v1", 5*time.Second)
	if err := c.EnsureCollection(t.Context()); err != nil {
		t.Fatalf("EnsureCollection() failed: %v", err)
	}
}

func TestImportDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/articles_v1/documents/import" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("action") != "upsert" {
			t.Errorf("action = %q", r.URL.Query().Get("action"))
		}
		_, _ = w.Write([]byte("{\"success\":true}\n{\"success\":true}\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "articles_v1", 5*time.Second)
	docs := []Document{
		{ID: "a1", TitleHi: "पहला", TitleRomanNorm: "pahala", PublishedTS: 1},
		{ID: "a2", TitleHi: "दूसरा", TitleRomanNorm: "dusara", PublishedTS: 2},
	}
	if err := c.ImportDocuments(t.Context(), docs); err != nil {
		t.Fatalf("ImportDocuments() failed: %v", err)
	}
}

func TestImportDocumentsRejectedRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{\"success\":true}\n{\"success\":false,\"error\":\"bad field\"}\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "articles_v1", 5*time.Second)
	docs := []Document{{ID: "a1"}, {ID: "a2"}}
	err := c.ImportDocuments(t.Context(), docs)
	if err == nil {
		t.Fatal("want error for rejected row")
	}
}
