package ignis

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeEngine(t *testing.T) (*Engine, net.Conn) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ReadTimeoutMS = 2000
	e := New(cfg)

	client, srv := net.Pipe()
	t.Cleanup(func() { client.Close() })

	go newConnection(e, srv).serve()

	return e, client
}

func readResponse(t *testing.T, client net.Conn) *http.Response {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	return resp
}

func TestConnectionServesSimpleGET(t *testing.T) {
	e, client := newPipeEngine(t)
	e.GET("/ping", func(req *Request, res *Response) error {
		return res.WriteString("pong")
	})

	client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("GET /ping HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	resp := readResponse(t, client)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestConnectionKeepAlivePipelinesTwoRequests(t *testing.T) {
	e, client := newPipeEngine(t)
	e.GET("/a", func(req *Request, res *Response) error { return res.WriteString("a") })
	e.GET("/b", func(req *Request, res *Response) error { return res.WriteString("b") })

	client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte(
		"GET /a HTTP/1.1\r\nHost: x\r\n\r\n" +
			"GET /b HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	first := readResponse(t, client)
	assert.Equal(t, 200, first.StatusCode)

	second := readResponse(t, client)
	assert.Equal(t, 200, second.StatusCode)
}

func TestConnectionReadsFixedLengthBody(t *testing.T) {
	e, client := newPipeEngine(t)
	var seen string
	e.POST("/echo", func(req *Request, res *Response) error {
		buf := make([]byte, 5)
		n, _ := req.Body.Read(buf)
		seen = string(buf[:n])
		return res.NoContent()
	})

	body := "hello"
	client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte(
		"POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nConnection: close\r\n\r\n" + body))
	require.NoError(t, err)

	resp := readResponse(t, client)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Equal(t, "hello", seen)
}

func TestConnectionReadsChunkedBody(t *testing.T) {
	e, client := newPipeEngine(t)
	var seen string
	e.POST("/echo", func(req *Request, res *Response) error {
		buf := make([]byte, 11)
		n, _ := req.Body.Read(buf)
		seen = string(buf[:n])
		return res.NoContent()
	})

	raw := "POST /echo HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\nConnection: close\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"

	client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte(raw))
	require.NoError(t, err)

	resp := readResponse(t, client)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Equal(t, "hello world", seen)
}

func TestConnectionRejectsBodyOverMaxBytes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 4
	e := New(cfg)
	e.POST("/echo", func(req *Request, res *Response) error { return res.NoContent() })

	client, srv := net.Pipe()
	t.Cleanup(func() { client.Close() })
	go newConnection(e, srv).serve()

	client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte(
		"POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 100\r\nConnection: close\r\n\r\n" + strings.Repeat("x", 100)))
	require.NoError(t, err)

	resp := readResponse(t, client)
	assert.Equal(t, 413, resp.StatusCode)
}

func TestConnectionUnknownRouteReturnsNotFound(t *testing.T) {
	e, client := newPipeEngine(t)

	client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Write([]byte("GET /nowhere HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	resp := readResponse(t, client)
	assert.Equal(t, 404, resp.StatusCode)
}
