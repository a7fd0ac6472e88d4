package utils

import (
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"
)

// Routes lists every registered route of a chi router as "METHOD /path".
func Routes(r chi.Routes) ([]string, error) {
	var routes []string
	walkFunc := func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, fmt.Sprintf("%-6s %s", method, strings.ReplaceAll(route, "/*/", "/")))
		return nil
	}
	if err := chi.Walk(r, walkFunc); err != nil {
		return nil, err
	}
	return routes, nil
}
