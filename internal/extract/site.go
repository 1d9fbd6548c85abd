package extract

import (
	"net/url"
	"path"
	"strings"
)

const queryDateLayout = "01/02/2006"

// resolveURL resolves href against the site base URL.
func resolveURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// filingIDFromURL uses the last non-empty path segment of a filing link as
// its identifier, dropping any file extension.
func filingIDFromURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	id := path.Base(strings.TrimRight(u.Path, "/"))
	if ext := path.Ext(id); ext != "" {
		id = strings.TrimSuffix(id, ext)
	}
	if id == "." || id == "/" {
		return href
	}
	return id
}

func searchURL(baseURL, route string, q url.Values) string {
	return strings.TrimRight(baseURL, "/") + route + "?" + q.Encode()
}
