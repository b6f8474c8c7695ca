package middleware

import (
	"bytes"
	"compress/gzip"
	"strings"
	"sync"

	"github.com/ignishq/ignis"
)

// GzipConfig configures Gzip.
type GzipConfig struct {
	// Level is the compress/gzip level. Default gzip.DefaultCompression.
	Level int

	// MinLength skips compression for bodies shorter than this, where
	// the fixed gzip framing overhead isn't worth paying. Default 256.
	MinLength int
}

// DefaultGzipConfig matches the teacher framework's own gzip gas defaults.
var DefaultGzipConfig = GzipConfig{Level: gzip.DefaultCompression, MinLength: 256}

// Gzip returns a middleware that compresses the response body when the
// client's Accept-Encoding allows it, the way the teacher framework's own
// GzipEnabled option does for its response writer.
func Gzip() ignis.Middleware {
	return GzipWithConfig(DefaultGzipConfig)
}

// GzipWithConfig returns a Gzip middleware from config.
func GzipWithConfig(config GzipConfig) ignis.Middleware {
	if config.MinLength == 0 {
		config.MinLength = DefaultGzipConfig.MinLength
	}

	pool := &sync.Pool{
		New: func() interface{} {
			w, _ := gzip.NewWriterLevel(nil, config.Level)
			return w
		},
	}

	return ignis.Middleware{
		Name:     "gzip",
		Priority: 900,
		Post: func(req *ignis.Request, res *ignis.Response) error {
			if !strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") {
				return nil
			}
			if res.Header().Get("Content-Encoding") != "" {
				return nil
			}

			body := res.Body()
			if len(body) < config.MinLength {
				return nil
			}

			var buf bytes.Buffer
			zw := pool.Get().(*gzip.Writer)
			zw.Reset(&buf)
			defer pool.Put(zw)

			if _, err := zw.Write(body); err != nil {
				return nil
			}
			if err := zw.Close(); err != nil {
				return nil
			}

			res.Header().Set("Content-Encoding", "gzip")
			res.Header().Add("Vary", "Accept-Encoding")
			res.SetBody(buf.Bytes())
			return nil
		},
	}
}
