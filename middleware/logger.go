package middleware

import (
	"bytes"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/valyala/fasttemplate"

	"github.com/ignishq/ignis"
)

// LoggerConfig configures RequestLogger.
type LoggerConfig struct {
	// Format is a fasttemplate string using "${tag}" placeholders. See
	// DefaultLoggerConfig.Format for the recognized tags.
	Format string

	// Output is where rendered lines are written. Default os.Stdout.
	Output io.Writer
}

// DefaultLoggerConfig is the default RequestLogger config, matching the
// teacher framework's own default logger gas format.
var DefaultLoggerConfig = LoggerConfig{
	Format: `{"time":"${time_rfc3339}","remote_ip":"${remote_ip}",` +
		`"method":"${method}","path":"${path}","status":${status},` +
		`"latency_us":${latency},"latency_human":"${latency_human}"}` + "\n",
	Output: os.Stdout,
}

// RequestLogger returns a middleware that logs one line per request, timed
// from Pre to Post, using the engine's error translator result for status.
func RequestLogger() ignis.Middleware {
	return RequestLoggerWithConfig(DefaultLoggerConfig)
}

// RequestLoggerWithConfig returns a RequestLogger middleware from config.
func RequestLoggerWithConfig(config LoggerConfig) ignis.Middleware {
	if config.Format == "" {
		config.Format = DefaultLoggerConfig.Format
	}
	if config.Output == nil {
		config.Output = DefaultLoggerConfig.Output
	}

	tmpl := fasttemplate.New(config.Format, "${", "}")
	bufferPool := &sync.Pool{
		New: func() interface{} { return new(bytes.Buffer) },
	}

	type timing struct{ start time.Time }

	return ignis.Middleware{
		Name:     "request_logger",
		Priority: -900,
		Pre: func(req *ignis.Request, res *ignis.Response) (bool, error) {
			req.Set("logger_start", timing{start: time.Now()})
			return false, nil
		},
		Post: func(req *ignis.Request, res *ignis.Response) error {
			start := time.Now()
			if v, ok := req.Get("logger_start"); ok {
				if t, ok := v.(timing); ok {
					start = t.start
				}
			}
			stop := time.Now()

			buf := bufferPool.Get().(*bytes.Buffer)
			buf.Reset()
			defer bufferPool.Put(buf)

			_, err := tmpl.ExecuteFunc(buf, func(w io.Writer, tag string) (int, error) {
				switch tag {
				case "time_rfc3339":
					return w.Write([]byte(stop.Format(time.RFC3339)))
				case "remote_ip":
					return w.Write([]byte(remoteIP(req)))
				case "method":
					return w.Write([]byte(req.Method))
				case "path":
					return w.Write([]byte(req.Path))
				case "status":
					return w.Write([]byte(strconv.Itoa(res.Status)))
				case "latency":
					return w.Write([]byte(strconv.FormatInt(stop.Sub(start).Microseconds(), 10)))
				case "latency_human":
					return w.Write([]byte(stop.Sub(start).String()))
				}
				return 0, nil
			})
			if err != nil {
				return nil
			}

			config.Output.Write(buf.Bytes())
			return nil
		},
	}
}

func remoteIP(req *ignis.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := req.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if req.RemoteAddr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr.String())
	if err != nil {
		return req.RemoteAddr.String()
	}
	return host
}
