package api

import (
	"net/url"
	"strconv"
	"strings"

	"resourcekit/internal/service"
)

// parseIndexParams reads listing parameters:
//
//	search|q, sort (-col for descending), direction, page, per_page,
//	filter[name]=v or filter.name=v (repeatable)
func parseIndexParams(q url.Values) service.IndexParams {
	p := service.IndexParams{Filters: map[string]any{}}

	p.Search = strings.TrimSpace(q.Get("search"))
	if p.Search == "" {
		p.Search = strings.TrimSpace(q.Get("q"))
	}

	sv := strings.TrimSpace(q.Get("sort"))
	p.Direction = strings.ToLower(strings.TrimSpace(q.Get("direction")))
	if strings.HasPrefix(sv, "-") {
		sv = strings.TrimPrefix(sv, "-")
		p.Direction = "desc"
	} else if strings.HasPrefix(sv, "+") {
		sv = strings.TrimPrefix(sv, "+")
	}
	p.Sort = sv

	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil && n > 0 {
		p.PerPage = n
	}

	for key, vals := range q {
		name, ok := filterName(key)
		if !ok {
			continue
		}
		clean := make([]any, 0, len(vals))
		for _, v := range vals {
			if strings.TrimSpace(v) != "" {
				clean = append(clean, v)
			}
		}
		switch len(clean) {
		case 0:
		case 1:
			p.Filters[name] = clean[0]
		default:
			p.Filters[name] = clean
		}
	}
	return p
}

func filterName(key string) (string, bool) {
	switch {
	case strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]"):
		name := key[len("filter[") : len(key)-1]
		return name, name != ""
	case strings.HasPrefix(key, "filter."):
		name := strings.TrimPrefix(key, "filter.")
		return name, name != ""
	}
	return "", false
}
