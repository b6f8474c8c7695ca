package middleware

import (
	"bytes"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/minify/v2/xml"

	"github.com/ignishq/ignis"
)

// Minify returns a middleware that minifies the response body by its
// Content-Type, the way the teacher framework's own minifier wires one
// m.Minify instance across html/css/js/json/svg/xml, applied here as a
// pipeline stage instead of a method every response writer call goes
// through.
func Minify() ignis.Middleware {
	m := minify.New()
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/javascript", js.Minify)
	m.AddFunc("application/javascript", js.Minify)
	m.AddFunc("application/json", json.Minify)
	m.AddFunc("text/xml", xml.Minify)
	m.AddFunc("application/xml", xml.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)

	return ignis.Middleware{
		Name:     "minify",
		Priority: 800,
		Post: func(req *ignis.Request, res *ignis.Response) error {
			mimeType := res.Header().Get("Content-Type")
			if mimeType == "" {
				return nil
			}
			if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
				mimeType = mimeType[:idx]
			}

			body := res.Body()
			if len(body) == 0 {
				return nil
			}

			var buf bytes.Buffer
			if err := m.Minify(mimeType, &buf, bytes.NewReader(body)); err != nil {
				if err == minify.ErrNotExist {
					return nil
				}
				return nil
			}

			res.SetBody(buf.Bytes())
			return nil
		},
	}
}
