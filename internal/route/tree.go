package route

import (
	"net/http"
	"path"
	"strings"

	"request_pipeline/internal/web"
)

// Node is either a *Group or a *Leaf.
type Node interface {
	node()
}

// Group is a set of routes sharing a path prefix. Groups nest.
type Group struct {
	Prefix string
	Routes []Node

	full []string
}

// Leaf binds a path pattern to a route context. Pattern segments of the form
// {name} capture a parameter; a trailing * matches any remainder.
type Leaf struct {
	Pattern string
	Route   *web.Route

	full []string
}

func (*Group) node() {}
func (*Leaf) node()  {}

// Status is the outcome of resolving a request against the tree.
type Status int

const (
	NotFound Status = iota
	Matched
	MethodNotAllowed
)

// Resolution is the result of Tree.Resolve.
type Resolution struct {
	Status Status

	// Route is the matched route, or for MethodNotAllowed the first route
	// whose path matched.
	Route  *web.Route
	Params map[string]string

	// Allowed lists the methods served on the path (MethodNotAllowed only).
	Allowed []string
}

// Tree is an ordered, compiled route list.
type Tree struct {
	routes []Node
}

// New compiles the given nodes. Group prefixes are joined into the patterns
// of their descendants.
func New(nodes ...Node) *Tree {
	compile(nil, nodes)
	return &Tree{routes: nodes}
}

// Routes returns the top-level nodes.
func (t *Tree) Routes() []Node {
	if t == nil {
		return nil
	}
	return t.routes
}

func compile(prefix []string, nodes []Node) {
	for _, n := range nodes {
		switch v := n.(type) {
		case *Group:
			v.full = append(append([]string(nil), prefix...), split(v.Prefix)...)
			compile(v.full, v.Routes)
		case *Leaf:
			v.full = append(append([]string(nil), prefix...), split(v.Pattern)...)
			for i, m := range v.Route.Methods {
				v.Route.Methods[i] = strings.ToUpper(m)
			}
		}
	}
}

func split(p string) []string {
	p = path.Clean("/" + p)
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Match reports whether the request path falls under the group prefix.
func (g *Group) Match(r *http.Request) bool {
	segs := split(r.URL.Path)
	if len(segs) < len(g.full) {
		return false
	}
	for i, s := range g.full {
		if s != segs[i] {
			return false
		}
	}
	return true
}

// Match reports whether the request matches the leaf. When checkMethod is
// false only the path is compared.
func (l *Leaf) Match(r *http.Request, checkMethod bool) (map[string]string, bool) {
	if checkMethod && !l.Route.AllowsMethod(r.Method) {
		return nil, false
	}
	return matchSegments(l.full, split(r.URL.Path))
}

func matchSegments(pattern, segs []string) (map[string]string, bool) {
	params := map[string]string{}
	for i, p := range pattern {
		if p == "*" && i == len(pattern)-1 {
			params["*"] = strings.Join(segs[i:], "/")
			return params, true
		}
		if i >= len(segs) {
			return nil, false
		}
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			params[p[1:len(p)-1]] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	if len(segs) != len(pattern) {
		return nil, false
	}
	return params, true
}

// Resolve finds the route for r. The first leaf matching path and method
// wins; if only the path matches the result is MethodNotAllowed.
func (t *Tree) Resolve(r *http.Request) Resolution {
	res := Resolution{Status: NotFound}
	t.walk(r, t.Routes(), &res)
	return res
}

func (t *Tree) walk(r *http.Request, nodes []Node, res *Resolution) bool {
	for _, n := range nodes {
		switch v := n.(type) {
		case *Group:
			if v.Match(r) && t.walk(r, v.Routes, res) {
				return true
			}
		case *Leaf:
			params, ok := v.Match(r, false)
			if !ok {
				continue
			}
			if v.Route.AllowsMethod(r.Method) {
				res.Status = Matched
				res.Route = v.Route
				res.Params = params
				res.Allowed = nil
				return true
			}
			if res.Status == NotFound {
				res.Status = MethodNotAllowed
				res.Route = v.Route
				res.Params = params
			}
			res.Allowed = appendUnique(res.Allowed, v.Route.Methods...)
		}
	}
	return false
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
