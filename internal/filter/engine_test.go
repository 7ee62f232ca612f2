package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"aeroport/internal/model"
	"aeroport/internal/payload"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		filters []model.Filter
		want    bool
	}{
		{
			name:    "no filters passes everything",
			item:    Item{Title: "anything", Content: "whatever"},
			filters: nil,
			want:    true,
		},
		{
			name: "include word matches",
			item: Item{Title: "Leather Weekender Duffel", Content: "Herschel"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "duffel"},
			},
			want: true,
		},
		{
			name: "include word no match",
			item: Item{Title: "Canvas Tote", Content: "Baggu"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "duffel"},
			},
			want: false,
		},
		{
			name: "include is case insensitive",
			item: Item{Title: "DUFFEL bag", Content: ""},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "duffel"},
			},
			want: true,
		},
		{
			name: "exclude word blocks match",
			item: Item{Title: "Refurbished backpack", Content: "Outlet"},
			filters: []model.Filter{
				{Kind: model.FilterExclude, Scope: model.ScopeAll, Value: "refurbished"},
			},
			want: false,
		},
		{
			name: "include + exclude: both match, exclude wins",
			item: Item{Title: "Refurbished duffel", Content: ""},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "duffel"},
				{Kind: model.FilterExclude, Scope: model.ScopeAll, Value: "refurbished"},
			},
			want: false,
		},
		{
			name: "multiple includes OR logic: second matches",
			item: Item{Title: "Laptop sleeve", Content: ""},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "duffel"},
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "laptop"},
			},
			want: true,
		},
		{
			name: "regex include matches",
			item: Item{Title: "Rolling carry-on 22in", Content: ""},
			filters: []model.Filter{
				{Kind: model.FilterIncludeRe, Scope: model.ScopeAll, Value: `carry-?on \d+in`},
			},
			want: true,
		},
		{
			name: "invalid regex in filter is skipped (no match)",
			item: Item{Title: "anything", Content: ""},
			filters: []model.Filter{
				{Kind: model.FilterIncludeRe, Scope: model.ScopeAll, Value: "[invalid"},
			},
			want: false,
		},
		{
			name: "unicode cyrillic include",
			item: Item{Title: "Сумка дорожная", Content: "Кожа"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "сумка"},
			},
			want: true,
		},
		{
			name: "scope title: word only in content does not match",
			item: Item{Title: "Weekender", Content: "Samsonite"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeTitle, Value: "samsonite"},
			},
			want: false,
		},
		{
			name: "scope content: brand in content matches",
			item: Item{Title: "Weekender", Content: "Samsonite"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeContent, Value: "samsonite"},
			},
			want: true,
		},
		{
			name: "mixed scopes: title include + content exclude",
			item: Item{Title: "Backpack", Content: "Generic sponsored"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeTitle, Value: "backpack"},
				{Kind: model.FilterExclude, Scope: model.ScopeContent, Value: "sponsored"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.item, tt.filters)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		filters []model.Filter
		wantErr bool
	}{
		{name: "empty", filters: nil},
		{name: "valid", filters: []model.Filter{{Kind: model.FilterExcludeRe, Value: "k(id|ids)"}}},
		{name: "invalid regex", filters: []model.Filter{{Kind: model.FilterIncludeRe, Value: "[x"}}, wantErr: true},
		{name: "unknown kind", filters: []model.Filter{{Kind: "maybe", Value: "x"}}, wantErr: true},
		{name: "unknown scope", filters: []model.Filter{{Kind: model.FilterInclude, Scope: "url", Value: "x"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.filters)
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Errorf("Compile() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}

func TestMatchPayload(t *testing.T) {
	schema := payload.NewSchema("shopitem", "title", "brand_title", "category_name", "price")
	p := schema.New()
	p.MustSet("title", "Weekender Duffel")
	p.MustSet("brand_title", "Herschel")
	p.MustSet("category_name", "duffle-bags")
	p.MustSet("price", 59.0)

	rules, err := Compile([]model.Filter{
		{Kind: model.FilterInclude, Scope: model.ScopeContent, Value: "herschel"},
		{Kind: model.FilterExcludeRe, Scope: model.ScopeTitle, Value: "^kids"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !rules.MatchPayload(p) {
		t.Error("expected payload to pass")
	}

	p.MustSet("title", "Kids Weekender")
	if rules.MatchPayload(p) {
		t.Error("expected payload to be excluded")
	}

	var none *Rules
	if !none.MatchPayload(p) {
		t.Error("nil rules must pass everything")
	}
}

func TestValidateRegex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "valid simple", pattern: "hello", wantErr: false},
		{name: "valid alternation", pattern: "tote|duffel|backpack", wantErr: false},
		{name: "invalid unclosed bracket", pattern: "[invalid", wantErr: true},
		{name: "invalid bad repetition", pattern: "*bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegex(tt.pattern)
			gotErr := err != nil
			if diff := cmp.Diff(tt.wantErr, gotErr); diff != "" {
				t.Errorf("ValidateRegex() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}
