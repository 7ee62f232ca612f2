// Package filter implements the include/exclude rules applied to payloads
// before dispatch.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"aeroport/internal/model"
	"aeroport/internal/payload"
)

// contentFields are the payload fields matched by ScopeContent.
var contentFields = []string{"brand_title", "category_name", "description", "vendor", "shop_title"}

// Item is the text of a payload that filters are matched against.
type Item struct {
	Title   string
	Content string
}

// ItemFromPayload extracts the title and content text of p.
func ItemFromPayload(p *payload.Payload) Item {
	var parts []string
	for _, f := range contentFields {
		if s := p.String(f); s != "" {
			parts = append(parts, s)
		}
	}
	title := p.String("title")
	if title == "" {
		title = p.String("name")
	}
	return Item{Title: title, Content: strings.Join(parts, " ")}
}

// Match checks whether an item passes the given set of filters.
// If no filters are provided, the item always passes.
// Include filters use OR logic (at least one must match).
// Exclude filters use AND logic (none must match).
func Match(item Item, filters []model.Filter) bool {
	rules, _ := compile(filters, false)
	return rules.match(item)
}

// Rules is a compiled filter set.
type Rules struct {
	rules []rule
}

type rule struct {
	model.Filter
	re *regexp.Regexp
}

// Compile validates filters and compiles their regular expressions once.
func Compile(filters []model.Filter) (*Rules, error) {
	return compile(filters, true)
}

func compile(filters []model.Filter, strict bool) (*Rules, error) {
	r := &Rules{}
	for _, f := range filters {
		ru := rule{Filter: f}
		switch f.Kind {
		case model.FilterIncludeRe, model.FilterExcludeRe:
			re, err := regexp.Compile("(?i)" + f.Value)
			if err != nil && strict {
				return nil, fmt.Errorf("filter %s %q: invalid regex: %w", f.Kind, f.Value, err)
			}
			ru.re = re
		case model.FilterInclude, model.FilterExclude:
		default:
			if strict {
				return nil, fmt.Errorf("unknown filter kind %q", f.Kind)
			}
		}
		switch f.Scope {
		case "", model.ScopeAll, model.ScopeTitle, model.ScopeContent:
		default:
			if strict {
				return nil, fmt.Errorf("unknown filter scope %q", f.Scope)
			}
		}
		r.rules = append(r.rules, ru)
	}
	return r, nil
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// MatchPayload reports whether p passes the rules. A nil Rules passes everything.
func (r *Rules) MatchPayload(p *payload.Payload) bool {
	if r.Len() == 0 {
		return true
	}
	return r.match(ItemFromPayload(p))
}

func (r *Rules) match(item Item) bool {
	if r.Len() == 0 {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false

	for _, f := range r.rules {
		switch f.Kind {
		case model.FilterInclude, model.FilterIncludeRe:
			hasIncludes = true
			if matchesRule(item, f) {
				anyIncludeMatched = true
			}
		case model.FilterExclude, model.FilterExcludeRe:
			if matchesRule(item, f) {
				return false
			}
		}
	}

	if hasIncludes && !anyIncludeMatched {
		return false
	}
	return true
}

func matchesRule(item Item, f rule) bool {
	text := textForScope(item, f.Scope)
	switch f.Kind {
	case model.FilterInclude, model.FilterExclude:
		return strings.Contains(text, strings.ToLower(f.Value))
	case model.FilterIncludeRe, model.FilterExcludeRe:
		if f.re == nil {
			return false
		}
		return f.re.MatchString(text)
	}
	return false
}

func textForScope(item Item, scope model.FilterScope) string {
	switch scope {
	case model.ScopeTitle:
		return strings.ToLower(item.Title)
	case model.ScopeContent:
		return strings.ToLower(item.Content)
	default:
		return strings.ToLower(item.Title + " " + item.Content)
	}
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
