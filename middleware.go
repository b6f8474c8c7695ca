package ignis

import (
	"fmt"
	"runtime"
	"sort"
)

// Phase labels a Middleware as pre-route or post-route. The engine records
// it but does not consult it when ordering: every middleware's Pre runs in
// ascending Priority order and every Post in the reverse of that order,
// whatever its Phase. PhasePreRoute is the default.
type Phase uint8

// Middleware phases.
const (
	PhasePreRoute Phase = iota
	PhasePostRoute
)

// PreFunc runs before the handler. Returning shortCircuit true (or a
// non-nil error) stops the pipeline: the handler and every later
// pre-route middleware are skipped, and post-route unwinding begins from
// this middleware's own Post, if any.
type PreFunc func(req *Request, res *Response) (shortCircuit bool, err error)

// PostFunc runs after the handler, or after an earlier short-circuit, to
// observe or rewrite the response.
type PostFunc func(req *Request, res *Response) error

// Middleware is one named pipeline stage. Name must be unique within the
// scope (engine, group or route) it is registered at.
type Middleware struct {
	Name     string
	Phase    Phase
	Priority int
	Pre      PreFunc
	Post     PostFunc

	// DependsOn lists dependency names this middleware resolves. The engine
	// does not read it; di cycle detection covers only the DependsOn edges
	// of registered service descriptors.
	DependsOn []string
}

type registeredMiddleware struct {
	mw Middleware
}

// registerMiddleware adds m to the engine's global chain. rt is unused; it
// exists so the same helper shape could later support additional
// registration sites without an API break.
func (e *Engine) registerMiddleware(m Middleware, rt *Route) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for _, existing := range e.globalMiddleware {
		if existing.mw.Name == m.Name {
			panic("ignis: duplicate global middleware name: " + m.Name)
		}
	}

	e.globalMiddleware = append(e.globalMiddleware, &registeredMiddleware{mw: m})
	sortGlobalMiddleware(e.globalMiddleware)
}

// sortGlobalMiddleware orders the global chain ascending by priority,
// ties broken by registration order (a stable sort over the slice as
// appended preserves registration order among equal priorities).
func sortGlobalMiddleware(rm []*registeredMiddleware) {
	sort.SliceStable(rm, func(i, j int) bool {
		return rm[i].mw.Priority < rm[j].mw.Priority
	})
}

// buildChain concatenates global, group/route-level middleware for a
// matched route into the single ordered list the engine walks forward for
// the pre-route phase and backward for the post-route phase: global
// (ascending priority) then route-attached (registration order, which
// already carries group middleware prepended by Group.add).
func (e *Engine) buildChain(rt *Route) []*registeredMiddleware {
	chain := make([]*registeredMiddleware, 0, len(e.globalMiddleware)+len(rt.middleware))
	chain = append(chain, e.globalMiddleware...)
	chain = append(chain, rt.middleware...)
	return chain
}

// runChain executes chain around handler with short-circuit semantics: the
// first Pre that short-circuits or errors stops forward execution: handler
// and later Pre calls are skipped, and Post runs in reverse from that same
// position back to the start.
func (e *Engine) runChain(chain []*registeredMiddleware, rt *Route, req *Request, res *Response) {
	stopAt := len(chain) // len(chain) means nothing short-circuited

	for i, rm := range chain {
		if rm.mw.Pre == nil {
			continue
		}

		shortCircuit, err := e.callPreRecovered(rm, req, res)
		if err != nil {
			e.translateError(err, req, res)
			stopAt = i
			break
		}
		if shortCircuit {
			stopAt = i
			break
		}
	}

	if stopAt == len(chain) {
		if err := e.callHandlerRecovered(rt.Handler, req, res); err != nil {
			e.translateError(err, req, res)
		}
	}

	unwindFrom := stopAt
	if unwindFrom == len(chain) {
		unwindFrom = len(chain) - 1
	}

	for i := unwindFrom; i >= 0; i-- {
		rm := chain[i]
		if rm.mw.Post == nil {
			continue
		}
		if err := rm.mw.Post(req, res); err != nil {
			e.translateError(err, req, res)
		}
	}
}

// callPreRecovered runs a Pre function, converting a panic into the same
// (shortCircuit, err) shape a well-behaved Pre would have returned: the
// chain stops and the panic's value becomes a CategoryHandler error for
// translateError to sanitize, the way the teacher framework's Recover gas
// turns a downstream panic into its own HTTPError.
func (e *Engine) callPreRecovered(rm *registeredMiddleware, req *Request, res *Response) (shortCircuit bool, err error) {
	defer e.recoverInto(&err)
	return rm.mw.Pre(req, res)
}

func (e *Engine) callHandlerRecovered(h Handler, req *Request, res *Response) (err error) {
	defer e.recoverInto(&err)
	return h(req, res)
}

func (e *Engine) recoverInto(errp *error) {
	r := recover()
	if r == nil {
		return
	}

	var cause error
	switch v := r.(type) {
	case error:
		cause = v
	default:
		cause = fmt.Errorf("%v", v)
	}

	size := e.Config.RecoverStackSize
	if size <= 0 {
		size = 4 << 10
	}
	stack := make([]byte, size)
	n := runtime.Stack(stack, !e.Config.RecoverDisableStackAll)
	e.Logger.Errorf("ignis: recovered panic: %v\n%s", cause, stack[:n])

	*errp = errHandler(cause)
}

func (e *Engine) translateError(err error, req *Request, res *Response) {
	e.mutex.RLock()
	translator := e.errorTranslator
	e.mutex.RUnlock()
	translator(err, req, res)
}
