package ignis

import (
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// paramKind is the declared type constraint of a parameter segment.
type paramKind uint8

const (
	paramStr paramKind = iota
	paramInt
	paramFloat
	paramUUID
	paramPath
)

func parseParamKind(s string) (paramKind, bool) {
	switch s {
	case "", "str":
		return paramStr, true
	case "int":
		return paramInt, true
	case "float":
		return paramFloat, true
	case "uuid":
		return paramUUID, true
	case "path":
		return paramPath, true
	default:
		return 0, false
	}
}

func coerces(kind paramKind, segment string) bool {
	switch kind {
	case paramInt:
		_, err := strconv.Atoi(segment)
		return err == nil
	case paramFloat:
		_, err := strconv.ParseFloat(segment, 64)
		return err == nil
	case paramUUID:
		_, err := uuid.Parse(segment)
		return err == nil
	default: // paramStr, paramPath
		return true
	}
}

// routeNode is one node of the registration trie, one per path segment.
type routeNode struct {
	literal map[string]*routeNode

	paramName string
	paramKind paramKind
	param     *routeNode

	wildcardName string
	wildcard     *routeNode

	handlers map[string]*Route // method -> route
}

func newRouteNode() *routeNode {
	return &routeNode{literal: map[string]*routeNode{}, handlers: map[string]*Route{}}
}

// router is the engine's route registry: a per-segment trie with literal,
// parameter and wildcard children, searched in that priority order.
type router struct {
	root   *routeNode
	routes []*Route
}

func newRouter() *router {
	return &router{root: newRouteNode()}
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// register compiles pattern into the trie for method, returning the new
// Route. It panics on a syntactically invalid pattern or a pattern that
// conflicts with an existing registration for the same method, the way
// the teacher's own router panics at startup-time registration errors
// rather than returning them, since routes are meant to be fixed before
// serving begins.
func (r *router) register(method, pattern string, h Handler) *Route {
	segments := splitPath(pattern)

	cur := r.root
	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			inner := seg[1 : len(seg)-1]
			name, typ := inner, ""
			if idx := strings.IndexByte(inner, ':'); idx >= 0 {
				name, typ = inner[:idx], inner[idx+1:]
			}

			kind, ok := parseParamKind(typ)
			if !ok {
				panic("ignis: invalid parameter type in pattern " + pattern)
			}

			if kind == paramPath {
				if i != len(segments)-1 {
					panic("ignis: wildcard segment must be last in pattern " + pattern)
				}
				if cur.wildcard == nil {
					cur.wildcard = newRouteNode()
					cur.wildcardName = name
				}
				cur = cur.wildcard
				break
			}

			if cur.param == nil {
				cur.param = newRouteNode()
				cur.paramName = name
				cur.paramKind = kind
			} else if cur.paramName != name || cur.paramKind != kind {
				panic("ignis: conflicting parameter declaration in pattern " + pattern)
			}
			cur = cur.param
		} else {
			next, ok := cur.literal[seg]
			if !ok {
				next = newRouteNode()
				cur.literal[seg] = next
			}
			cur = next
		}
	}

	if _, exists := cur.handlers[method]; exists {
		panic("ignis: route already registered: " + method + " " + pattern)
	}

	rt := &Route{Method: method, Pattern: pattern, Handler: h}
	cur.handlers[method] = rt
	r.routes = append(r.routes, rt)

	return rt
}

// methodRegistered reports whether pattern already has an exact
// registration for method (used by Engine's HEAD/OPTIONS synthesis so it
// never overwrites an explicit registration).
func (r *router) methodRegistered(method, pattern string) (*Route, bool) {
	segments := splitPath(pattern)
	node := r.root
	for _, seg := range segments {
		var next *routeNode
		switch {
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, ":path}"):
			next = node.wildcard
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			next = node.param
		default:
			next = node.literal[seg]
		}
		if next == nil {
			return nil, false
		}
		node = next
	}
	rt, ok := node.handlers[method]
	return rt, ok
}

// allowedMethods returns the sorted set of methods registered at pattern's
// exact terminal node.
func (r *router) allowedMethods(pattern string) []string {
	segments := splitPath(pattern)
	node := r.root
	for _, seg := range segments {
		var next *routeNode
		switch {
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, ":path}"):
			next = node.wildcard
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			next = node.param
		default:
			next = node.literal[seg]
		}
		if next == nil {
			return nil
		}
		node = next
	}
	out := make([]string, 0, len(node.handlers))
	for m := range node.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// MatchResult is the outcome of a router lookup.
type MatchResult struct {
	// Kind is one of MatchFound, MatchMethodNotAllowed, MatchNotFound.
	Kind    MatchKind
	Route   *Route
	Params  []paramValue
	Allowed []string
}

// MatchKind enumerates MatchResult.Kind.
type MatchKind uint8

const (
	MatchNotFound MatchKind = iota
	MatchMethodNotAllowed
	MatchFound
)

// lookup finds the route matching method and path, per the engine's
// literal > parameter > wildcard priority, failing a parameter match
// closed (treated as no match) when the segment does not coerce to the
// declared type.
func (r *router) lookup(method, path string) MatchResult {
	segments := splitPath(path)

	var params []paramValue

	node, ok := r.match(r.root, segments, 0, &params)
	if !ok {
		return MatchResult{Kind: MatchNotFound}
	}

	if rt, ok := node.handlers[method]; ok {
		return MatchResult{Kind: MatchFound, Route: rt, Params: params}
	}

	if len(node.handlers) == 0 {
		return MatchResult{Kind: MatchNotFound}
	}

	allowed := make([]string, 0, len(node.handlers))
	for m := range node.handlers {
		allowed = append(allowed, m)
	}
	return MatchResult{Kind: MatchMethodNotAllowed, Allowed: allowed}
}

func (r *router) match(node *routeNode, segments []string, i int, params *[]paramValue) (*routeNode, bool) {
	if i == len(segments) {
		if len(node.handlers) > 0 {
			return node, true
		}
		// A node with no handlers but with a wildcard child matching
		// zero segments is not a match: wildcards require >=1 segment.
		return nil, false
	}

	seg := segments[i]

	if next, ok := node.literal[seg]; ok {
		saved := len(*params)
		if n, ok := r.match(next, segments, i+1, params); ok {
			return n, true
		}
		*params = (*params)[:saved]
	}

	if node.param != nil && coerces(node.paramKind, seg) {
		saved := len(*params)
		*params = append(*params, paramValue{name: node.paramName, value: seg})
		if n, ok := r.match(node.param, segments, i+1, params); ok {
			return n, true
		}
		*params = (*params)[:saved]
	}

	if node.wildcard != nil {
		rest := strings.Join(segments[i:], "/")
		*params = append(*params, paramValue{name: node.wildcardName, value: rest})
		return node.wildcard, true
	}

	return nil, false
}
