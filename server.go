package ignis

import (
	"context"
	"net"
	"sync"

	"golang.org/x/net/netutil"
)

// server runs the engine's reactor pool: either Config.Workers independent
// listeners sharing one address via SO_REUSEPORT, or one shared listener
// fanned out to Config.Workers accept goroutines on platforms without it.
type server struct {
	engine    *Engine
	listeners []net.Listener

	wg sync.WaitGroup
}

func newServer(e *Engine) (*server, error) {
	s := &server{engine: e}

	if e.Config.UnixSocket != "" {
		l, err := net.Listen("unix", e.Config.UnixSocket)
		if err != nil {
			return nil, err
		}
		s.listeners = append(s.listeners, s.wrapListener(l))
		return s, nil
	}

	workers := e.Config.Workers
	if workers < 1 {
		workers = 1
	}

	if canReusePort() && workers > 1 {
		lc := reusePortListenConfig()
		for i := 0; i < workers; i++ {
			l, err := lc.Listen(context.Background(), "tcp", e.Config.Address)
			if err != nil {
				s.closeAll()
				return nil, err
			}
			s.listeners = append(s.listeners, s.wrapListener(l))
		}
		return s, nil
	}

	l, err := net.Listen("tcp", e.Config.Address)
	if err != nil {
		return nil, err
	}
	s.listeners = append(s.listeners, s.wrapListener(l))

	return s, nil
}

// wrapListener bounds concurrent accepted connections to
// WorkerPoolSize+AcceptQueue, so that past that point Accept blocks rather
// than the process fork-bombing goroutines under load. The 503 response
// itself comes from Engine.acquireDispatchSlot, which enforces the same
// WorkerPoolSize/AcceptQueue budget one layer in, once a request is ready
// to dispatch.
func (s *server) wrapListener(l net.Listener) net.Listener {
	limit := s.engine.Config.WorkerPoolSize + s.engine.Config.AcceptQueue
	if limit <= 0 {
		limit = 1
	}
	return netutil.LimitListener(l, limit)
}

func (s *server) closeAll() {
	for _, l := range s.listeners {
		l.Close()
	}
}

// serve runs one accept loop per listener (one reactor each when
// SO_REUSEPORT gave us independent listeners; Config.Workers goroutines
// sharing the single listener otherwise) until every listener is closed and
// every connection it accepted has finished.
func (s *server) serve() error {
	s.engine.mutex.Lock()
	s.engine.listeners = s.listeners
	s.engine.mutex.Unlock()

	s.engine.Logger.Infof("ignis: listening on %d reactor(s)", len(s.listeners))

	errCh := make(chan error, len(s.listeners))

	reactors := 1
	if len(s.listeners) == 1 && canReusePort() == false {
		reactors = s.engine.Config.Workers
		if reactors < 1 {
			reactors = 1
		}
	}

	for _, l := range s.listeners {
		for i := 0; i < reactors; i++ {
			s.wg.Add(1)
			go func(l net.Listener) {
				defer s.wg.Done()
				errCh <- s.acceptLoop(l)
			}(l)
		}
	}

	err := <-errCh
	s.wg.Wait()
	return err
}

func (s *server) acceptLoop(l net.Listener) error {
	for {
		c, err := l.Accept()
		if err != nil {
			select {
			case <-s.engine.closing:
				return nil
			default:
				return err
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newConnection(s.engine, c).serve()
		}()
	}
}

// shutdown closes every listener so no new connections are accepted, then
// waits up to ctx's deadline for the accept loops to return and for every
// accepted connection to finish.
func (s *server) shutdown(ctx context.Context) error {
	s.closeAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
