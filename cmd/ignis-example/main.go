// Command ignis-example wires a small engine together: a couple of routes
// exercising path parameters and request binding, a DI-registered service,
// and the standard middleware stack.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/ignishq/ignis"
	"github.com/ignishq/ignis/di"
	"github.com/ignishq/ignis/middleware"
)

// Greeter is a singleton service resolved by the /greet route, registered
// through the DI container rather than constructed inline, so the route
// handler stays agnostic of how the greeting is produced.
type Greeter struct {
	Prefix string
}

func (g *Greeter) Greet(name string) string {
	return g.Prefix + name
}

type user struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func main() {
	cfg := ignis.DefaultConfig()
	cfg.AppName = "ignis-example"
	cfg.Address = "localhost:8080"

	e := ignis.New(cfg)

	if err := e.Container.Register(&di.ServiceDescriptor{
		Name:  "greeter",
		Scope: di.Singleton,
		Factory: func(_ *di.Container) (interface{}, error) {
			return &Greeter{Prefix: "Hello, "}, nil
		},
	}); err != nil {
		fmt.Fprintln(os.Stderr, "register greeter:", err)
		os.Exit(1)
	}

	e.Use(middleware.Recover(e))
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.CORS())
	e.Use(middleware.Gzip())

	e.GET("/healthz", func(req *ignis.Request, res *ignis.Response) error {
		return res.WriteJSON(map[string]string{"status": "ok"})
	})

	e.GET("/greet/{name}", func(req *ignis.Request, res *ignis.Response) error {
		svc, err := req.Resolve("greeter")
		if err != nil {
			return err
		}
		greeter := svc.(*Greeter)
		return res.WriteJSON(map[string]string{
			"message": greeter.Greet(req.Param("name").String()),
		})
	}, ignis.WithDependencies("greeter"))

	e.GET("/users/{id:uuid}", func(req *ignis.Request, res *ignis.Response) error {
		id, err := req.Param("id").UUID()
		if err != nil {
			return err
		}
		return res.WriteJSON(user{ID: id, Name: "anonymous"})
	})

	users := e.Group("/users")
	users.Use(middleware.JWTAuth([]byte("change-me-in-production")))
	users.POST("/", func(req *ignis.Request, res *ignis.Response) error {
		var u user
		if err := req.Decode("application/json", &u); err != nil {
			return ignis.NewHTTPError(400, ignis.CategoryValidation, "invalid body: %v", err)
		}
		res.Status = 201
		return res.WriteJSON(u)
	})

	static := e.Group("/static")
	static.GET("/{path:path}", middleware.StaticHandler("./public"))

	e.Logger.Infof("ignis: example listening on %s", cfg.Address)
	if err := e.ListenAndServe(); err != nil {
		e.Logger.Fatalf("ignis: %v", err)
	}
}
