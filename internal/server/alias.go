package server

import (
	"net/http"
	"strings"
)

const (
	aiReplyRoute = "/cards/ai-reply"
	aiReplyAlias = "/cards:withAiReply"
)

type aliasKey struct {
	method string
	path   string
}

// exactAliases map request paths gin cannot route directly, and the paths served by the
// first version of the site, onto registered routes. Each alias applies to one method.
var exactAliases = map[aliasKey]string{
	{method: http.MethodPost, path: aiReplyAlias}:          aiReplyRoute,
	{method: http.MethodPost, path: "/"}:                   "/cards",
	{method: http.MethodGet, path: "/server/get/sortasc"}:  "/feed/oldest",
	{method: http.MethodGet, path: "/server/get/sortdesc"}: "/feed/newest",
	{method: http.MethodPost, path: "/server/comment"}:     "/comments",
	{method: http.MethodPost, path: "/server/like"}:        "/likes",
	{method: http.MethodPost, path: "/server/gemini"}:      aiReplyRoute,
}

// prefixAliases rewrite the read-only paths of the first version of the site.
var prefixAliases = []struct {
	from string
	to   string
}{
	{from: "/server/get/sorted/", to: "/feed/"},
	{from: "/server/card/", to: "/cards/"},
}

// aliasHandler rewrites aliased paths before handing the request to the router. Gin
// treats ':' as a parameter marker, so "/cards:withAiReply" cannot be registered as is.
type aliasHandler struct {
	next http.Handler
}

func newAliasHandler(next http.Handler) http.Handler {
	return &aliasHandler{next: next}
}

func (h *aliasHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if target, ok := resolveAlias(r.Method, r.URL.Path); ok {
		rewritten := r.Clone(r.Context())
		rewritten.URL.Path = target
		rewritten.URL.RawPath = ""
		r = rewritten
	}
	h.next.ServeHTTP(w, r)
}

func resolveAlias(method, path string) (string, bool) {
	if target, ok := exactAliases[aliasKey{method: method, path: path}]; ok {
		return target, true
	}
	if method != http.MethodGet {
		return "", false
	}
	for _, alias := range prefixAliases {
		if rest, found := strings.CutPrefix(path, alias.from); found && rest != "" {
			return alias.to + rest, true
		}
	}
	return "", false
}
