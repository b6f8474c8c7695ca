/*
Package ignis implements the core request-processing engine of an HTTP
application server.

Router

A router maps an HTTP method and path to a handler. Registering a route
requires a path pattern made of STATIC, PARAM ("{name}") and ANY
(wildcard, "{name:path}") components:

	e.GET(
		"/users/{id:int}/posts/{postID:int}",
		func(req *ignis.Request, res *ignis.Response) error {
			id, err := req.Param("id").Int()
			if err != nil {
				return err
			}

			postID, err := req.Param("postID").Int()
			if err != nil {
				return err
			}

			return res.WriteJSON(map[string]any{
				"user_id": id,
				"post_id": postID,
			})
		},
	)

PARAM components may carry a type constraint ("{id:int}", "{id:uuid}", ...);
a segment that fails to coerce to its declared type is treated as a
non-match, so that a sibling route can still claim the path.

Middleware

Middleware run in two phases, pre-route and post-route: every Pre in
ascending priority order, every Post in the reverse of that order. A pre-route middleware may short-circuit the pipeline by
returning true (or an error) from its Pre, skipping the handler and all
later pre-route middleware while still running its own post-route step and
those of the middleware that wrapped it, in reverse.

Dependency injection

Services are registered with a name, a factory, and a scope (singleton,
request, or transient). Handlers and middleware resolve the services they
need by name through Request.Resolve; the container rejects a
registration that would close a cycle in the services' declared
dependencies.

Memory

All per-request allocation happens in one of five named arenas (request,
response, cache, static, task), each independently resettable in
O(number of slabs).
*/
package ignis
