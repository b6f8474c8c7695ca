package ignis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"
)

// loggerLevel is the severity of a Logger entry.
type loggerLevel uint8

// Logger levels, ascending severity.
const (
	lvlDebug loggerLevel = iota
	lvlInfo
	lvlWarn
	lvlError
	lvlFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// Logger renders leveled log entries through a text/template format string,
// the way the teacher framework's own Logger does.
type Logger struct {
	engine *Engine

	mutex      sync.Mutex
	template   *template.Template
	bufferPool *sync.Pool

	// Output is where rendered entries are written. Default: os.Stderr.
	Output io.Writer

	// Enabled toggles all logging output.
	Enabled bool
}

func newLogger(e *Engine) *Logger {
	return &Logger{
		engine: e,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 256))
			},
		},
		Output:  os.Stderr,
		Enabled: true,
	}
}

// Debugf logs a DEBUG entry.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(lvlDebug, format, args...) }

// Infof logs an INFO entry.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(lvlInfo, format, args...) }

// Warnf logs a WARN entry.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(lvlWarn, format, args...) }

// Errorf logs an ERROR entry.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(lvlError, format, args...) }

// Fatalf logs a FATAL entry and terminates the process.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(lvlFatal, format, args...)
	os.Exit(1)
}

// Debugj logs a DEBUG entry with structured fields merged into the output.
func (l *Logger) Debugj(fields map[string]interface{}) { l.logj(lvlDebug, fields) }

// Infoj logs an INFO entry with structured fields merged into the output.
func (l *Logger) Infoj(fields map[string]interface{}) { l.logj(lvlInfo, fields) }

// Errorj logs an ERROR entry with structured fields merged into the output.
func (l *Logger) Errorj(fields map[string]interface{}) { l.logj(lvlError, fields) }

func (l *Logger) logj(lvl loggerLevel, fields map[string]interface{}) {
	b, _ := json.Marshal(fields)
	l.log(lvl, "%s", string(b))
}

// log renders one entry. The 3-frame caller skip assumes it is invoked from
// one of the exported level methods above.
func (l *Logger) log(lvl loggerLevel, format string, args ...interface{}) {
	if !l.Enabled {
		return
	}

	l.mutex.Lock()
	if l.template == nil {
		format := l.engine.Config.LogFormat
		for k, v := range map[string]string{
			"${app_name}":      "{{.AppName}}",
			"${time_rfc3339}":  "{{.Time}}",
			"${level}":         "{{.Level}}",
			"${short_file}":    "{{.ShortFile}}",
			"${long_file}":     "{{.LongFile}}",
			"${line}":          "{{.Line}}",
		} {
			format = strings.ReplaceAll(format, k, v)
		}
		l.template = template.Must(template.New("ignis-log").Parse(format))
	}
	tmpl := l.template
	l.mutex.Unlock()

	message := fmt.Sprintf(format, args...)

	if lvl == lvlFatal {
		message = "FATAL: " + message
	}

	_, file, line, _ := runtime.Caller(2)

	data := struct {
		AppName   string
		Time      string
		Level     string
		ShortFile string
		LongFile  string
		Line      string
	}{
		AppName:   l.engine.Config.AppName,
		Time:      time.Now().Format(time.RFC3339),
		Level:     levelNames[lvl],
		ShortFile: path.Base(file),
		LongFile:  file,
		Line:      strconv.Itoa(line),
	}

	buf := l.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := tmpl.Execute(buf, data); err == nil {
		s := buf.Bytes()
		if n := len(s); n > 0 && s[n-1] == '}' {
			buf.Truncate(n - 1)
			buf.WriteString(`,"message":`)
			mb, _ := json.Marshal(message)
			buf.Write(mb)
			buf.WriteByte('}')
		} else {
			buf.WriteByte(' ')
			buf.WriteString(message)
		}
		buf.WriteByte('\n')

		l.mutex.Lock()
		l.Output.Write(buf.Bytes())
		l.mutex.Unlock()
	}

	l.bufferPool.Put(buf)
}
