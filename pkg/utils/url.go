package utils

import (
	"net/url"
	"strings"
)

// ExpandTemplate substitutes the query-escaped term for every placeholder in tmpl.
func ExpandTemplate(tmpl, placeholder, term string) string {
	return strings.ReplaceAll(tmpl, placeholder, url.QueryEscape(strings.TrimSpace(term)))
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}
