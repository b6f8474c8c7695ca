package middleware

import (
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aofei/mimesniffer"

	"github.com/ignishq/ignis"
)

// StaticConfig configures StaticHandler.
type StaticConfig struct {
	// Root is the directory static content is served from. Required.
	Root string

	// Index is served for a directory request. Default "index.html".
	Index string

	// Param is the wildcard path parameter name the route pattern binds
	// the remaining path segments to, e.g. "path" for a route registered
	// as "/static/{path:path}". Default "path".
	Param string
}

// DefaultStaticConfig matches the teacher framework's own default static
// gas config save for Root, which has no sane default.
var DefaultStaticConfig = StaticConfig{Index: "index.html", Param: "path"}

// StaticHandler returns a route Handler serving files under root, meant to
// be registered at a route ending in a path-typed wildcard parameter (see
// the router's {name:path} segment kind), the way the teacher framework's
// own static gas serves everything past a group's "*" prefix.
func StaticHandler(root string) ignis.Handler {
	c := DefaultStaticConfig
	c.Root = root
	return StaticHandlerWithConfig(c)
}

// StaticHandlerWithConfig returns a StaticHandler from config.
func StaticHandlerWithConfig(config StaticConfig) ignis.Handler {
	if config.Index == "" {
		config.Index = DefaultStaticConfig.Index
	}
	if config.Param == "" {
		config.Param = DefaultStaticConfig.Param
	}

	return func(req *ignis.Request, res *ignis.Response) error {
		rel := req.Param(config.Param).String()
		clean := path.Clean("/" + rel)
		full := filepath.Join(config.Root, filepath.FromSlash(clean))

		if !strings.HasPrefix(full, filepath.Clean(config.Root)) {
			return ignis.NewHTTPError(403, ignis.CategoryValidation, "path escapes static root")
		}

		f, err := os.Open(full)
		if err != nil {
			return ignis.NewHTTPError(404, ignis.CategoryRouting, "not found")
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil {
			return err
		}

		if fi.IsDir() {
			f.Close()
			full = filepath.Join(full, config.Index)
			f, err = os.Open(full)
			if err != nil {
				return ignis.NewHTTPError(404, ignis.CategoryRouting, "not found")
			}
			defer f.Close()
			if fi, err = f.Stat(); err != nil {
				return err
			}
		}

		body, err := io.ReadAll(f)
		if err != nil {
			return err
		}

		contentType := mime.TypeByExtension(filepath.Ext(full))
		if contentType == "" {
			contentType = mimesniffer.Sniff(body)
		}
		if contentType != "" {
			res.Header().Set("Content-Type", contentType)
		}

		_, err = res.Write(body)
		return err
	}
}
