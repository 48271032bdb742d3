// Package routes turns an OpenAPI document into the route table served by
// the HTTP server and maps its operations to Go handlers.
package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

var ErrUnsupportedPath = errors.New("unsupported path template")

// methodOrder fixes the order routes of one path are listed in.
var methodOrder = map[string]int{
	http.MethodGet:     0,
	http.MethodPost:    1,
	http.MethodPut:     2,
	http.MethodPatch:   3,
	http.MethodDelete:  4,
	http.MethodHead:    5,
	http.MethodOptions: 6,
}

// Route is one operation of the document.
type Route struct {
	Path        string
	Method      string
	OperationID string
	Operation   *openapi3.Operation
	PathItem    *openapi3.PathItem

	pattern string
	// wildcard name in the mux pattern -> parameter name in the document
	params map[string]string
}

// Pattern is the http.ServeMux pattern serving the route.
func (r Route) Pattern() string {
	return r.pattern
}

// Params returns the path parameters of req keyed by their document names.
// req must have been routed through Pattern.
func (r Route) Params(req *http.Request) map[string]string {
	out := make(map[string]string, len(r.params))
	for wildcard, name := range r.params {
		out[name] = req.PathValue(wildcard)
	}
	return out
}

// Table is a loaded and validated document plus its routes.
type Table struct {
	doc    *openapi3.T
	routes []Route
	source string
}

// Load reads, resolves and validates the document at specPath.
func Load(specPath string) (*Table, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	data, err := os.ReadFile(specPath) // #nosec G304 - operator supplied document
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("OpenAPI spec validation failed: %w", err)
	}

	routes, err := collectRoutes(doc)
	if err != nil {
		return nil, err
	}

	return &Table{doc: doc, routes: routes, source: specPath}, nil
}

func collectRoutes(doc *openapi3.T) ([]Route, error) {
	if doc.Paths == nil {
		return nil, nil
	}

	paths := doc.Paths.Map()
	routes := make([]Route, 0, len(paths)*2)

	for path, item := range paths {
		for method, op := range item.Operations() {
			pattern, params, err := muxPattern(method, path)
			if err != nil {
				return nil, err
			}
			routes = append(routes, Route{
				Path:        path,
				Method:      method,
				OperationID: op.OperationID,
				Operation:   op,
				PathItem:    item,
				pattern:     pattern,
				params:      params,
			})
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return methodOrder[routes[i].Method] < methodOrder[routes[j].Method]
	})

	return routes, nil
}

// muxPattern converts an OpenAPI path into a ServeMux pattern. Parameters must
// fill a whole segment. Their names are rewritten to valid wildcard names.
func muxPattern(method, path string) (string, map[string]string, error) {
	segments := strings.Split(path, "/")
	params := make(map[string]string)

	for i, seg := range segments {
		if !strings.ContainsAny(seg, "{}") {
			continue
		}
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") || strings.Count(seg, "{") != 1 {
			return "", nil, fmt.Errorf("%w: %s %s", ErrUnsupportedPath, method, path)
		}
		name := seg[1 : len(seg)-1]
		wildcard := wildcardName(name, len(params))
		for {
			if _, taken := params[wildcard]; !taken {
				break
			}
			wildcard += "_"
		}
		params[wildcard] = name
		segments[i] = "{" + wildcard + "}"
	}

	p := strings.Join(segments, "/")
	if strings.HasSuffix(p, "/") {
		p += "{$}"
	}
	return method + " " + p, params, nil
}

func wildcardName(name string, n int) string {
	var b strings.Builder
	for i, c := range name {
		switch {
		case c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z'):
			b.WriteRune(c)
		case '0' <= c && c <= '9':
			if i == 0 {
				b.WriteByte('p')
			}
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return fmt.Sprintf("p%d", n)
	}
	return b.String()
}

// Routes returns the routes sorted by path, then method.
func (t *Table) Routes() []Route {
	return t.routes
}

// Source is the file the table was loaded from.
func (t *Table) Source() string {
	return t.source
}

// Document returns the loaded document. Callers must not modify it.
func (t *Table) Document() *openapi3.T {
	return t.doc
}

// DocumentJSON renders the document with its servers replaced by serverURL.
// The loaded document itself is left untouched.
func (t *Table) DocumentJSON(serverURL string) ([]byte, error) {
	doc := *t.doc
	if serverURL != "" {
		doc.Servers = openapi3.Servers{{URL: serverURL}}
	}
	return json.Marshal(&doc)
}

// ValidateRequest checks req against the route's parameters and body schema.
// Security requirements are not enforced.
func (t *Table) ValidateRequest(ctx context.Context, route Route, req *http.Request) error {
	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: route.Params(req),
		Route: &routers.Route{
			Spec:      t.doc,
			Path:      route.Path,
			PathItem:  route.PathItem,
			Method:    route.Method,
			Operation: route.Operation,
		},
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}
	return openapi3filter.ValidateRequest(ctx, input)
}
