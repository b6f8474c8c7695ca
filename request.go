package ignis

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack"

	"github.com/ignishq/ignis/di"
)

// Request is an HTTP request as delivered to a handler or middleware. A
// fixed-length Body is carved from the request arena, which is reset once
// the response is written; nothing retained past the handler's return is
// safe to read.
type Request struct {
	engine *Engine

	Method     string
	Path       string
	Proto      string
	Query      map[string][]string
	Header     http.Header
	Body       io.Reader
	RemoteAddr net.Addr
	ReceivedAt time.Time

	ctx          map[string]interface{}
	params       []paramValue
	requestScope *di.RequestScope
}

type paramValue struct {
	name  string
	value string
}

// NewRequest builds an empty Request bound to e, for tests and handlers
// that want to invoke another handler or middleware directly without a
// real connection.
func NewRequest(e *Engine) *Request {
	return newRequest(e)
}

func newRequest(e *Engine) *Request {
	return &Request{
		engine:       e,
		Query:        map[string][]string{},
		Header:       http.Header{},
		requestScope: di.NewRequestScope(),
	}
}

func (r *Request) reset() {
	r.Method = ""
	r.Path = ""
	r.Proto = ""
	for k := range r.Query {
		delete(r.Query, k)
	}
	for k := range r.Header {
		delete(r.Header, k)
	}
	r.Body = nil
	r.RemoteAddr = nil
	r.ctx = nil
	r.params = r.params[:0]
	r.requestScope = di.NewRequestScope()
}

// Param is a path parameter accessor returned by Request.Param; the zero
// value reports an empty string and a failed coercion for every typed
// accessor, so a missing parameter fails closed rather than panicking.
type Param struct {
	name  string
	value string
	found bool
}

// SetParam binds name to value as if the router had captured it, for tests
// and handlers composing another handler directly without a route match.
func (r *Request) SetParam(name, value string) {
	r.params = append(r.params, paramValue{name: name, value: value})
}

// Param looks up a path parameter captured by the route's pattern.
func (r *Request) Param(name string) Param {
	for _, p := range r.params {
		if p.name == name {
			return Param{name: name, value: p.value, found: true}
		}
	}
	return Param{name: name}
}

// String returns the raw parameter value.
func (p Param) String() string { return p.value }

// Found reports whether the parameter was present in the matched route.
func (p Param) Found() bool { return p.found }

// Int coerces the parameter to an int.
func (p Param) Int() (int, error) {
	if !p.found {
		return 0, errMissingParam(p.name)
	}
	n, err := strconv.Atoi(p.value)
	if err != nil {
		return 0, errValidation([]FieldError{{Field: p.name, Message: "not an integer", Value: p.value}})
	}
	return n, nil
}

// Float coerces the parameter to a float64.
func (p Param) Float() (float64, error) {
	if !p.found {
		return 0, errMissingParam(p.name)
	}
	f, err := strconv.ParseFloat(p.value, 64)
	if err != nil {
		return 0, errValidation([]FieldError{{Field: p.name, Message: "not a float", Value: p.value}})
	}
	return f, nil
}

// UUID coerces the parameter to a uuid.UUID.
func (p Param) UUID() (uuid.UUID, error) {
	if !p.found {
		return uuid.UUID{}, errMissingParam(p.name)
	}
	u, err := uuid.Parse(p.value)
	if err != nil {
		return uuid.UUID{}, errValidation([]FieldError{{Field: p.name, Message: "not a uuid", Value: p.value}})
	}
	return u, nil
}

// QueryValue returns the first query parameter value for name, and
// whether it was present at all.
func (r *Request) QueryValue(name string) (string, bool) {
	vs, ok := r.Query[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Set stores a value in the request-local context map, visible to every
// later middleware and the handler for the remainder of this request.
func (r *Request) Set(key string, value interface{}) {
	if r.ctx == nil {
		r.ctx = map[string]interface{}{}
	}
	r.ctx[key] = value
}

// Get retrieves a value previously stored with Set.
func (r *Request) Get(key string) (interface{}, bool) {
	if r.ctx == nil {
		return nil, false
	}
	v, ok := r.ctx[key]
	return v, ok
}

// Resolve resolves a named dependency through the engine's container,
// scoped to this request when the service was registered as Request-scoped.
// A resolution failure is translated into the matching CategoryDependency
// HTTPError so a handler can return it unwrapped and still get the
// sanitized 500 the dependency error taxonomy calls for.
func (r *Request) Resolve(name string) (interface{}, error) {
	v, err := r.engine.Container.Resolve(name, r.requestScope)
	if err != nil {
		return nil, translateDependencyError(name, err)
	}
	return v, nil
}

func translateDependencyError(name string, err error) error {
	var unknown *di.UnknownService
	var cycle *di.DependencyCycle
	var failure *di.ConstructionFailure

	switch {
	case errors.As(err, &unknown):
		return errUnknownService(unknown.Name)
	case errors.As(err, &cycle):
		return errDependencyCycle(cycle.Path)
	case errors.As(err, &failure):
		return errConstructionFailure(failure.Name, failure.Cause)
	default:
		return errConstructionFailure(name, err)
	}
}

// Decode reads and decodes the request body per contentType (as declared
// by the route, not necessarily the Content-Type header, so a route can
// force a decoding even for a client that mislabels its body).
func (r *Request) Decode(contentType string, v interface{}) error {
	if r.Body == nil {
		return errMalformedRequest("empty body")
	}

	switch contentType {
	case "application/json", "":
		return json.NewDecoder(r.Body).Decode(v)
	case "application/xml", "text/xml":
		return xml.NewDecoder(r.Body).Decode(v)
	case "application/msgpack", "application/x-msgpack":
		return msgpack.NewDecoder(r.Body).Decode(v)
	case "application/protobuf", "application/x-protobuf":
		m, ok := v.(proto.Message)
		if !ok {
			return errMalformedRequest("protobuf target does not implement proto.Message")
		}
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		return proto.Unmarshal(b, m)
	default:
		return errMalformedRequest("unsupported content type: " + contentType)
	}
}
