// Package di implements the engine's dependency injection container:
// named service descriptors resolved under a singleton, request or
// transient scope, with cycle detection at registration time.
package di

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Scope is a service's lifecycle.
type Scope int

const (
	// Singleton services are constructed once and shared for the life of
	// the container.
	Singleton Scope = iota
	// Request services are constructed once per request scope and shared
	// within it.
	Request
	// Transient services are constructed fresh on every Resolve call.
	Transient
)

// String returns the scope's name.
func (s Scope) String() string {
	switch s {
	case Singleton:
		return "singleton"
	case Request:
		return "request"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Factory constructs a service instance, resolving any dependencies it
// needs through c.
type Factory func(c *Container) (interface{}, error)

// ServiceDescriptor describes one registered service.
type ServiceDescriptor struct {
	Name    string
	Scope   Scope
	Factory Factory
	// DependsOn lists the names of services this one's Factory resolves,
	// used only for cycle detection at registration time; Factory is free
	// to call c.Resolve with names not listed here, but doing so forfeits
	// the static cycle check for that edge.
	DependsOn []string
}

// DependencyCycle reports a cyclic dependency graph discovered at
// registration time.
type DependencyCycle struct {
	Path []string
}

func (e *DependencyCycle) Error() string {
	return fmt.Sprintf("di: dependency cycle: %s", joinArrow(e.Path))
}

// UnknownService reports a Resolve call naming a service that was never
// registered.
type UnknownService struct {
	Name string
}

func (e *UnknownService) Error() string {
	return fmt.Sprintf("di: unknown service %q", e.Name)
}

// ConstructionFailure wraps an error raised by a service's Factory.
type ConstructionFailure struct {
	Name  string
	Cause error
}

func (e *ConstructionFailure) Error() string {
	return fmt.Sprintf("di: constructing %q: %v", e.Name, e.Cause)
}

func (e *ConstructionFailure) Unwrap() error { return e.Cause }

// Container resolves named services under singleton, request or transient
// scope, collapsing concurrent first-construction of a singleton into one
// Factory call the way a provider/container pair in the broader ecosystem
// does, and refusing to register a dependency graph that cycles.
type Container struct {
	mutex       sync.RWMutex
	descriptors map[string]*ServiceDescriptor

	singletonMu        sync.Mutex
	singletonInstances map[string]interface{}
	singletonGroup     singleflight.Group
}

// NewContainer returns an empty Container.
func NewContainer() *Container {
	return &Container{
		descriptors:        map[string]*ServiceDescriptor{},
		singletonInstances: map[string]interface{}{},
	}
}

// Register adds a service descriptor. It returns a *DependencyCycle if
// adding this descriptor would close a cycle in the declared DependsOn
// graph, without mutating the container.
func (c *Container) Register(d *ServiceDescriptor) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	next := make(map[string]*ServiceDescriptor, len(c.descriptors)+1)
	for k, v := range c.descriptors {
		next[k] = v
	}
	next[d.Name] = d

	if cyc := detectCycle(next); cyc != nil {
		return &DependencyCycle{Path: cyc}
	}

	c.descriptors[d.Name] = d
	return nil
}

// Has reports whether name is registered.
func (c *Container) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	_, ok := c.descriptors[name]
	return ok
}

// Scope returns the declared scope for name.
func (c *Container) Scope(name string) (Scope, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	d, ok := c.descriptors[name]
	if !ok {
		return 0, false
	}
	return d.Scope, true
}

// RequestScope is a per-request instance cache passed alongside the
// container when resolving a request-scoped service.
type RequestScope struct {
	mutex     sync.Mutex
	instances map[string]interface{}
}

// NewRequestScope returns an empty RequestScope.
func NewRequestScope() *RequestScope {
	return &RequestScope{instances: map[string]interface{}{}}
}

// Resolve constructs or retrieves the named service. rs is required when
// the service is request-scoped; it may be nil otherwise.
func (c *Container) Resolve(name string, rs *RequestScope) (interface{}, error) {
	c.mutex.RLock()
	d, ok := c.descriptors[name]
	c.mutex.RUnlock()
	if !ok {
		return nil, &UnknownService{Name: name}
	}

	switch d.Scope {
	case Singleton:
		return c.resolveSingleton(d)
	case Request:
		if rs == nil {
			return nil, fmt.Errorf("di: service %q is request-scoped but no RequestScope was supplied", name)
		}
		return c.resolveRequestScoped(d, rs)
	default: // Transient
		v, err := d.Factory(c)
		if err != nil {
			return nil, &ConstructionFailure{Name: name, Cause: err}
		}
		return v, nil
	}
}

func (c *Container) resolveSingleton(d *ServiceDescriptor) (interface{}, error) {
	c.singletonMu.Lock()
	if v, ok := c.singletonInstances[d.Name]; ok {
		c.singletonMu.Unlock()
		return v, nil
	}
	c.singletonMu.Unlock()

	v, err, _ := c.singletonGroup.Do(d.Name, func() (interface{}, error) {
		c.singletonMu.Lock()
		if v, ok := c.singletonInstances[d.Name]; ok {
			c.singletonMu.Unlock()
			return v, nil
		}
		c.singletonMu.Unlock()

		v, err := d.Factory(c)
		if err != nil {
			return nil, &ConstructionFailure{Name: d.Name, Cause: err}
		}

		c.singletonMu.Lock()
		c.singletonInstances[d.Name] = v
		c.singletonMu.Unlock()

		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Container) resolveRequestScoped(d *ServiceDescriptor, rs *RequestScope) (interface{}, error) {
	rs.mutex.Lock()
	if v, ok := rs.instances[d.Name]; ok {
		rs.mutex.Unlock()
		return v, nil
	}
	rs.mutex.Unlock()

	v, err := d.Factory(c)
	if err != nil {
		return nil, &ConstructionFailure{Name: d.Name, Cause: err}
	}

	rs.mutex.Lock()
	rs.instances[d.Name] = v
	rs.mutex.Unlock()

	return v, nil
}

// Clear removes all registered descriptors and cached singleton instances.
func (c *Container) Clear() {
	c.mutex.Lock()
	c.descriptors = map[string]*ServiceDescriptor{}
	c.mutex.Unlock()

	c.singletonMu.Lock()
	c.singletonInstances = map[string]interface{}{}
	c.singletonMu.Unlock()
}

// detectCycle runs a DFS over descriptors' DependsOn edges and returns the
// first cycle found as a path of service names, or nil if the graph is
// acyclic.
func detectCycle(descriptors map[string]*ServiceDescriptor) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(descriptors))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		switch color[name] {
		case black:
			return nil
		case gray:
			// Found the back-edge; return the cycle starting at name.
			start := 0
			for i, n := range path {
				if n == name {
					start = i
					break
				}
			}
			cyc := append([]string{}, path[start:]...)
			return append(cyc, name)
		}

		color[name] = gray
		path = append(path, name)

		if d, ok := descriptors[name]; ok {
			for _, dep := range d.DependsOn {
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}

		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for name := range descriptors {
		if color[name] == white {
			if cyc := visit(name); cyc != nil {
				return cyc
			}
		}
	}

	return nil
}

func joinArrow(path []string) string {
	s := ""
	for i, p := range path {
		if i > 0 {
			s += " -> "
		}
		s += p
	}
	return s
}
