package ignis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Config is the closed set of options recognized by the engine. Every field
// has a mapstructure tag so that it can be decoded from a JSON, TOML, YAML or
// INI configuration file.
type Config struct {
	// AppName identifies the application in log output.
	//
	// Default value: "ignis"
	AppName string `mapstructure:"app_name"`

	// DebugMode relaxes error sanitization: an HTTPError's Message is
	// written to the wire in place of its category code. Any other error
	// still gets the generic code.
	//
	// Default value: false
	DebugMode bool `mapstructure:"debug_mode"`

	// Address is the TCP address the server listens on.
	//
	// Default value: "localhost:8080"
	Address string `mapstructure:"address"`

	// UnixSocket is the path to a UNIX domain socket to listen on
	// instead of a TCP address, if the host OS supports it.
	//
	// Default value: ""
	UnixSocket string `mapstructure:"unix_socket"`

	// Workers is the number of event-loop reactor goroutines.
	//
	// Default value: runtime.GOMAXPROCS(0)
	Workers int `mapstructure:"workers"`

	// WorkerPoolSize bounds how many requests may be dispatched at once.
	// Handlers run on their connection's own goroutine; there is no
	// separate worker pool.
	//
	// Default value: 64
	WorkerPoolSize int `mapstructure:"worker_pool_size"`

	// MaxHeaderBytes caps the combined size of a request's header block.
	// Exceeding it produces a 431.
	//
	// Default value: 1048576
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`

	// MaxBodyBytes caps a request body's size. Exceeding it produces a
	// 413. A route may declare a tighter cap of its own.
	//
	// Default value: 4194304
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// ReadTimeout bounds how long the server waits for a header or body
	// read to make progress.
	//
	// Default value: 10000
	ReadTimeoutMS int `mapstructure:"read_timeout_ms"`

	// IdleTimeout bounds how long a keep-alive connection may sit idle
	// between requests.
	//
	// Default value: 60000
	IdleTimeoutMS int `mapstructure:"idle_timeout_ms"`

	// HandlerTimeout, when non-zero, is the connection's read deadline
	// while a request is dispatched. Nothing is read from the connection
	// during dispatch, and a running handler is neither interrupted nor
	// answered with a timeout response.
	//
	// Default value: 0
	HandlerTimeoutMS int `mapstructure:"handler_timeout_ms"`

	// AcceptQueue bounds how many requests may wait for a dispatch slot
	// once WorkerPoolSize are busy; past it a request gets a 503. It is
	// also added to WorkerPoolSize to cap the connections each listener
	// accepts. It does not set the socket's listen backlog.
	//
	// Default value: 1024
	AcceptQueue int `mapstructure:"accept_queue"`

	// MemoryProfiling toggles arena accounting (allocated/peak bytes,
	// fragmentation ratio); leaving it off avoids the bookkeeping cost on
	// the hot path.
	//
	// Default value: false
	MemoryProfiling bool `mapstructure:"memory_profiling"`

	// AutoHead registers a HEAD route alongside every GET route.
	//
	// Default value: true
	AutoHead bool `mapstructure:"auto_head"`

	// AutoOptions registers an OPTIONS route that reports the allowed
	// methods alongside every other route at the same path.
	//
	// Default value: true
	AutoOptions bool `mapstructure:"auto_options"`

	// LogFormat is the text/template format string used by the engine
	// Logger.
	//
	// Default value:
	// `{"app_name":"${app_name}","time":"${time_rfc3339}",`+
	// `"level":"${level}","file":"${short_file}","line":"${line}"}`
	LogFormat string `mapstructure:"log_format"`

	// ConfigFile is the path to a configuration file that is parsed into
	// the matching fields before the server starts. Supported extensions:
	// ".json", ".toml", ".yaml"/".yml", ".ini".
	//
	// Default value: ""
	ConfigFile string `mapstructure:"-"`

	// ConfigHotReload re-parses ConfigFile on modification and applies any
	// field that is safe to change without a restart.
	//
	// Default value: false
	ConfigHotReload bool `mapstructure:"config_hot_reload"`

	// RecoverStackSize bounds how many bytes of stack trace are captured
	// when runChain recovers a panic from a handler or middleware.
	//
	// Default value: 4096
	RecoverStackSize int `mapstructure:"recover_stack_size"`

	// RecoverDisableStackAll captures only the panicking goroutine's
	// stack instead of every other goroutine's too.
	//
	// Default value: false
	RecoverDisableStackAll bool `mapstructure:"recover_disable_stack_all"`
}

// DefaultConfig returns a new Config populated with the engine's defaults.
func DefaultConfig() *Config {
	return &Config{
		AppName:          "ignis",
		Address:          "localhost:8080",
		WorkerPoolSize:   64,
		MaxHeaderBytes:   1 << 20,
		MaxBodyBytes:     4 << 20,
		ReadTimeoutMS:    10000,
		IdleTimeoutMS:    60000,
		AcceptQueue:      1024,
		AutoHead:         true,
		AutoOptions:      true,
		RecoverStackSize: 4 << 10,
		LogFormat: `{"app_name":"${app_name}","time":"${time_rfc3339}",` +
			`"level":"${level}","file":"${short_file}","line":"${line}"}`,
	}
}

// ReadTimeout returns the configured read timeout as a time.Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// IdleTimeout returns the configured idle timeout as a time.Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}

// HandlerTimeout returns the configured handler timeout as a
// time.Duration. Zero means no deadline.
func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutMS) * time.Millisecond
}

// LoadFile decodes the file at path into c, dispatching on its extension.
// The file is first decoded into a generic map and then mapstructure-decoded
// into c, the way the teacher framework's own configuration loader works,
// generalized to a fourth file format (INI).
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	m := map[string]interface{}{}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(b, &m)
	case ".toml":
		err = toml.Unmarshal(b, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	case ".ini":
		m, err = iniToMap(path)
	default:
		return fmt.Errorf("ignis: unsupported configuration file extension: %s", ext)
	}

	if err != nil {
		return err
	}

	return mapstructure.WeakDecode(m, c)
}

// iniToMap flattens the keys of every section of an INI file into a single
// map, the way the rest of LoadFile's formats are already flat; a key
// repeated in a later section overwrites the earlier value.
func iniToMap(path string) (map[string]interface{}, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	m := map[string]interface{}{}
	for _, section := range f.Sections() {
		for _, key := range section.Keys() {
			m[key.Name()] = key.Value()
		}
	}

	return m, nil
}

// configWatcher hot-reloads a subset of Config fields from ConfigFile when it
// changes on disk, using fsnotify the way the teacher's coffer watches its
// asset root. Structural options (Address, Workers, UnixSocket, ...) are not
// reloadable; a change to them in the watched file is ignored without a log
// entry.
type configWatcher struct {
	engine  *Engine
	watcher *fsnotify.Watcher
	mutex   sync.Mutex
	done    chan struct{}
}

func newConfigWatcher(e *Engine) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(filepath.Dir(e.Config.ConfigFile)); err != nil {
		w.Close()
		return nil, err
	}

	cw := &configWatcher{engine: e, watcher: w, done: make(chan struct{})}
	go cw.loop()

	return cw, nil
}

func (cw *configWatcher) loop() {
	target := filepath.Clean(cw.engine.Config.ConfigFile)

	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cw.reload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}

			cw.engine.Logger.Errorf("ignis: config watcher error: %v", err)
		case <-cw.done:
			return
		}
	}
}

func (cw *configWatcher) reload() {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	next := *cw.engine.Config
	if err := next.LoadFile(cw.engine.Config.ConfigFile); err != nil {
		cw.engine.Logger.Errorf("ignis: failed to reload config: %v", err)
		return
	}

	applied := map[string]bool{}
	cw.engine.Config.applyHotReloadable(&next, applied)
	cw.engine.Logger.Infof("ignis: reloaded %d configuration field(s) from %s", len(applied), cw.engine.Config.ConfigFile)
}

// applyHotReloadable copies the subset of Config fields that ConfigHotReload
// is permitted to change on a running engine without a restart, recording
// which ones actually changed. Structural fields (Address, Workers,
// UnixSocket, ...) are not in this set and an attempt to change them via the
// watched file is silently ignored.
func (c *Config) applyHotReloadable(next *Config, applied map[string]bool) {
	if c.MaxHeaderBytes != next.MaxHeaderBytes {
		c.MaxHeaderBytes = next.MaxHeaderBytes
		applied["max_header_bytes"] = true
	}
	if c.MaxBodyBytes != next.MaxBodyBytes {
		c.MaxBodyBytes = next.MaxBodyBytes
		applied["max_body_bytes"] = true
	}
	if c.ReadTimeoutMS != next.ReadTimeoutMS {
		c.ReadTimeoutMS = next.ReadTimeoutMS
		applied["read_timeout_ms"] = true
	}
	if c.IdleTimeoutMS != next.IdleTimeoutMS {
		c.IdleTimeoutMS = next.IdleTimeoutMS
		applied["idle_timeout_ms"] = true
	}
	if c.HandlerTimeoutMS != next.HandlerTimeoutMS {
		c.HandlerTimeoutMS = next.HandlerTimeoutMS
		applied["handler_timeout_ms"] = true
	}
	if c.MemoryProfiling != next.MemoryProfiling {
		c.MemoryProfiling = next.MemoryProfiling
		applied["memory_profiling"] = true
	}
	if c.DebugMode != next.DebugMode {
		c.DebugMode = next.DebugMode
		applied["debug_mode"] = true
	}
	if c.LogFormat != next.LogFormat {
		c.LogFormat = next.LogFormat
		applied["log_format"] = true
	}
}

// Close stops the configWatcher.
func (cw *configWatcher) Close() error {
	close(cw.done)
	return cw.watcher.Close()
}
