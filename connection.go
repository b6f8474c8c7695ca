package ignis

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ignishq/ignis/arena"
)

// connState is the connection's position in its request/response cycle.
type connState uint8

const (
	stateIdle connState = iota
	stateReadingHeaders
	stateReadingBody
	stateDispatching
	stateWriting
	stateClosed
)

// connection owns one accepted socket for its entire keep-alive lifetime,
// decoding a pipelined sequence of requests off it and writing responses
// back in order.
type connection struct {
	engine *Engine
	conn   net.Conn
	br     *bufio.Reader
	state  connState
}

func newConnection(e *Engine, c net.Conn) *connection {
	return &connection{
		engine: e,
		conn:   c,
		br:     bufio.NewReader(c),
		state:  stateIdle,
	}
}

// serve drives the connection until the peer disconnects, a protocol
// error or timeout forces a close, or a request does not keep the
// connection alive.
func (c *connection) serve() {
	defer c.conn.Close()

	for {
		c.state = stateIdle
		c.conn.SetReadDeadline(time.Now().Add(c.engine.Config.IdleTimeout()))

		keepAlive, err := c.serveOne()
		if err != nil {
			return
		}
		if !keepAlive {
			return
		}
	}
}

// serveOne reads and dispatches a single request, returning whether the
// connection should stay open for another.
func (c *connection) serveOne() (keepAlive bool, err error) {
	// Wait for the first byte under the idle deadline set by serve; the
	// read timeout only starts once a request has begun to arrive.
	if _, err := c.br.Peek(1); err != nil {
		return false, err
	}

	c.state = stateReadingHeaders
	c.conn.SetReadDeadline(time.Now().Add(c.engine.Config.ReadTimeout()))

	method, path, query, proto, err := readRequestLine(c.br, c.engine.Config.MaxHeaderBytes)
	if err != nil {
		c.writeParseError(err)
		return false, err
	}

	header, _, err := readHeaders(c.br, c.engine.Config.MaxHeaderBytes)
	if err != nil {
		c.writeParseError(err)
		return false, err
	}

	c.state = stateReadingBody
	c.conn.SetReadDeadline(time.Now().Add(c.engine.Config.ReadTimeout()))

	body, err := c.readBody(header)
	if err != nil {
		c.writeParseError(err)
		return false, err
	}

	c.state = stateDispatching
	if c.engine.Config.HandlerTimeout() > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.engine.Config.HandlerTimeout()))
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}

	req := newRequest(c.engine)
	req.Method = method
	req.Path = path
	req.Proto = proto
	req.Query = parseQuery(query)
	req.Header = header
	req.Body = bytes.NewReader(body)
	req.RemoteAddr = c.conn.RemoteAddr()
	req.ReceivedAt = time.Now()

	res := newResponse(c.engine)

	if !c.engine.acquireDispatchSlot() {
		c.engine.translateError(errCapacitySaturated(), req, res)
		res.Header().Set("Retry-After", "1")
	} else {
		c.engine.dispatch(req, res)
		c.engine.releaseDispatchSlot()
	}

	c.state = stateWriting
	c.conn.SetWriteDeadline(time.Now().Add(c.engine.Config.ReadTimeout()))

	keepAlive = shouldKeepAlive(proto, header)
	err = c.writeResponse(res, keepAlive)

	c.engine.Arenas.Reset(arena.Request)
	c.engine.Arenas.Reset(arena.Response)

	if err != nil {
		return false, err
	}

	return keepAlive, nil
}

func (c *connection) readBody(header http.Header) ([]byte, error) {
	n, chunked, err := bodyLength(header)
	if err != nil {
		return nil, err
	}

	if chunked {
		return c.readChunkedBody()
	}
	if n == 0 {
		return nil, nil
	}
	if n > int64(c.engine.Config.MaxBodyBytes) {
		return nil, &parseError{kind: parseErrBodyTooLarge, msg: "request body too large"}
	}

	// Fixed-length bodies have a known size up front, so they're carved
	// straight out of the request arena instead of a fresh heap
	// allocation; the slice is reclaimed in bulk by the arena.Request
	// reset once the response has been written.
	buf := c.engine.Arenas.Arena(arena.Request).Acquire(int(n), 1)
	if buf == nil {
		buf = make([]byte, n)
	}
	if _, err := io.ReadFull(c.br, buf); err != nil {
		return nil, bodyReadError(err, "truncated body")
	}

	return buf, nil
}

// bodyReadError classifies a body read failure, distinguishing a read
// deadline expiry (408) from a genuine truncated/malformed body (400).
func bodyReadError(err error, msg string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &parseError{kind: parseErrTimeout, msg: "read timeout"}
	}
	return &parseError{kind: parseErrMalformed, msg: msg}
}

func (c *connection) readChunkedBody() ([]byte, error) {
	var out []byte

	for {
		sizeLine, err := c.br.ReadString('\n')
		if err != nil {
			return nil, bodyReadError(err, "truncated chunk size")
		}

		sizeLine = trimCRLF(sizeLine)
		if idx := indexByte(sizeLine, ';'); idx >= 0 {
			sizeLine = sizeLine[:idx]
		}

		size, err := strconv.ParseInt(sizeLine, 16, 64)
		if err != nil {
			return nil, &parseError{kind: parseErrMalformed, msg: "malformed chunk size"}
		}

		if size == 0 {
			// Trailing headers, if any, followed by the final CRLF.
			for {
				line, err := c.br.ReadString('\n')
				if err != nil {
					return nil, bodyReadError(err, "truncated chunk trailer")
				}
				if trimCRLF(line) == "" {
					break
				}
			}
			return out, nil
		}

		if int64(len(out))+size > c.engine.Config.MaxBodyBytes {
			return nil, &parseError{kind: parseErrBodyTooLarge, msg: "request body too large"}
		}

		chunk := make([]byte, size)
		if _, err := io.ReadFull(c.br, chunk); err != nil {
			return nil, bodyReadError(err, "truncated chunk body")
		}
		out = append(out, chunk...)

		// Consume the trailing CRLF after the chunk data.
		if _, err := c.br.ReadString('\n'); err != nil {
			return nil, bodyReadError(err, "truncated chunk terminator")
		}
	}
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func shouldKeepAlive(proto string, header http.Header) bool {
	conn := header.Get("Connection")
	if proto == "HTTP/1.0" {
		return equalFold(conn, "keep-alive")
	}
	return !equalFold(conn, "close")
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (c *connection) writeParseError(err error) {
	res := newResponse(c.engine)

	var pe *parseError
	if errors.As(err, &pe) {
		switch pe.kind {
		case parseErrHeaderTooLarge:
			c.translate(errHeaderTooLarge(), res)
		case parseErrBodyTooLarge:
			c.translate(errBodyTooLarge(), res)
		case parseErrTimeout:
			c.translate(errReadTimeout(), res)
		default:
			c.translate(errMalformedRequest(pe.msg), res)
		}
	} else {
		c.translate(errMalformedRequest(err.Error()), res)
	}

	c.writeResponse(res, false)
}

func (c *connection) translate(err error, res *Response) {
	req := &Request{Method: "-", Path: "-"}
	c.engine.translateError(err, req, res)
}

func (c *connection) writeResponse(res *Response, keepAlive bool) error {
	body := res.bodyBytes()

	res.header.Set("Content-Length", strconv.Itoa(len(body)))
	if keepAlive {
		res.header.Set("Connection", "keep-alive")
	} else {
		res.header.Set("Connection", "close")
	}

	w := bufio.NewWriter(c.conn)

	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}

	w.WriteString("HTTP/1.1 ")
	w.WriteString(strconv.Itoa(status))
	w.WriteByte(' ')
	w.WriteString(http.StatusText(status))
	w.WriteString("\r\n")

	for name, values := range res.header {
		for _, v := range values {
			w.WriteString(name)
			w.WriteString(": ")
			w.WriteString(v)
			w.WriteString("\r\n")
		}
	}
	w.WriteString("\r\n")

	if len(body) > 0 {
		w.Write(body)
	}

	return w.Flush()
}
