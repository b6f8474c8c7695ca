package ignis

import (
	"encoding/json"
	"encoding/xml"
	"net/http"

	"github.com/golang/protobuf/proto"
	"github.com/vmihailenco/msgpack"
)

// Response is the in-progress response a handler or middleware builds up.
// A new Response is built for every request.
type Response struct {
	engine *Engine

	Status int

	header http.Header
	body   []byte

	written      bool
	suppressBody bool
}

// NewResponse builds an empty Response bound to e, for tests and handlers
// that want to invoke another handler or middleware directly without a
// real connection.
func NewResponse(e *Engine) *Response {
	return newResponse(e)
}

func newResponse(e *Engine) *Response {
	return &Response{
		engine: e,
		Status: http.StatusOK,
		header: http.Header{},
	}
}

func (res *Response) reset() {
	res.Status = http.StatusOK
	for k := range res.header {
		delete(res.header, k)
	}
	res.body = nil
	res.written = false
	res.suppressBody = false
}

// Header returns the response's header map.
func (res *Response) Header() http.Header {
	return res.header
}

// Written reports whether a body has already been written to res.
func (res *Response) Written() bool {
	return res.written
}

// Write appends raw bytes to the response body, setting Content-Type to
// application/octet-stream if it has not already been set.
func (res *Response) Write(b []byte) (int, error) {
	if res.header.Get("Content-Type") == "" {
		res.header.Set("Content-Type", "application/octet-stream")
	}
	res.body = append(res.body, b...)
	res.written = true
	return len(b), nil
}

// WriteString writes a plain text body.
func (res *Response) WriteString(s string) error {
	res.header.Set("Content-Type", "text/plain; charset=utf-8")
	res.body = append(res.body, s...)
	res.written = true
	return nil
}

// WriteJSON encodes v as the response body with a JSON content type.
func (res *Response) WriteJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res.header.Set("Content-Type", "application/json; charset=utf-8")
	res.body = b
	res.written = true
	return nil
}

// WriteXML encodes v as the response body with an XML content type.
func (res *Response) WriteXML(v interface{}) error {
	b, err := xml.Marshal(v)
	if err != nil {
		return err
	}
	res.header.Set("Content-Type", "application/xml; charset=utf-8")
	res.body = b
	res.written = true
	return nil
}

// WriteMsgpack encodes v as the response body with a msgpack content type.
func (res *Response) WriteMsgpack(v interface{}) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	res.header.Set("Content-Type", "application/msgpack")
	res.body = b
	res.written = true
	return nil
}

// WriteProtobuf encodes m as the response body with a protobuf content
// type.
func (res *Response) WriteProtobuf(m proto.Message) error {
	b, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	res.header.Set("Content-Type", "application/protobuf")
	res.body = b
	res.written = true
	return nil
}

// Redirect writes a redirect response to url with the given status code
// (e.g. http.StatusFound).
func (res *Response) Redirect(status int, url string) error {
	res.Status = status
	res.header.Set("Location", url)
	res.written = true
	return nil
}

// NoContent writes an empty 204 response.
func (res *Response) NoContent() error {
	res.Status = http.StatusNoContent
	res.written = true
	return nil
}

// Body returns the response body accumulated so far, for middleware that
// needs to inspect or transform it post-handler (compression,
// minification).
func (res *Response) Body() []byte {
	return res.body
}

// SetBody replaces the response body wholesale, without touching
// Content-Type; used by middleware that re-encodes the body in place
// (compression, minification).
func (res *Response) SetBody(b []byte) {
	res.body = b
}

// bodyBytes returns the bytes to actually put on the wire, honoring
// suppressBody (set for synthesized HEAD responses).
func (res *Response) bodyBytes() []byte {
	if res.suppressBody {
		return nil
	}
	return res.body
}
