package logger

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sea-project/sea-sm2/util/serialize"
)

// 日志级别, 数值越大越详细
const (
	LevelError = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// 适配器名称
const (
	AdapterConsole = "console"
	AdapterElastic = "elastic"
)

// LevelMap 配置中的级别名称
var LevelMap = map[string]int{
	"error": LevelError,
	"warn":  LevelWarn,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"trace": LevelTrace,
}

var levelNames = [...]string{"ERROR", "WARN", "INFO", "DEBUG", "TRACE"}

// Logger 日志输出适配器
type Logger interface {
	Init(jsonConfig string) error
	LogWrite(when time.Time, msg interface{}, level int) error
	Destroy()
}

var (
	adapterMu sync.RWMutex
	adapters  = make(map[string]Logger)
)

// Register 注册适配器, 同名重复注册会panic
func Register(name string, log Logger) {
	adapterMu.Lock()
	defer adapterMu.Unlock()

	if log == nil {
		panic("logger: Register provide is nil")
	}
	if _, dup := adapters[name]; dup {
		panic("logger: Register called twice for provider " + name)
	}
	adapters[name] = log
}

type localLogger struct {
	mu      sync.RWMutex
	name    string
	level   int
	outputs map[string]Logger
}

var defaultLogger = &localLogger{
	name:    "sea-sm2",
	level:   LevelWarn,
	outputs: map[string]Logger{AdapterConsole: stdConsole},
}

// config 配置文件格式, 每个适配器一段原始JSON
type config struct {
	Name    string                          `json:"name"`
	Level   string                          `json:"level"`
	Console serialize.RawMessage            `json:"console"`
	Elastic serialize.RawMessage            `json:"elastic"`
	Extra   map[string]serialize.RawMessage `json:"adapters"`
}

// SetLogger 从JSON文件加载日志配置
func SetLogger(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return SetLoggerConfig(data)
}

// SetLoggerConfig 按配置重建输出, 未出现的适配器被关闭
func SetLoggerConfig(data []byte) error {
	var cfg config
	if err := serialize.JsonUnMarshal(data, &cfg); err != nil {
		return fmt.Errorf("logger: bad config: %w", err)
	}

	sections := map[string]serialize.RawMessage{}
	for name, raw := range cfg.Extra {
		sections[name] = raw
	}
	if len(cfg.Console) > 0 {
		sections[AdapterConsole] = cfg.Console
	}
	if len(cfg.Elastic) > 0 {
		sections[AdapterElastic] = cfg.Elastic
	}

	outputs := make(map[string]Logger, len(sections))
	adapterMu.RLock()
	for name, raw := range sections {
		adapter, ok := adapters[name]
		if !ok {
			adapterMu.RUnlock()
			return fmt.Errorf("logger: unknown adapter %q", name)
		}
		if err := adapter.Init(string(raw)); err != nil {
			adapterMu.RUnlock()
			return fmt.Errorf("logger: init %s: %w", name, err)
		}
		outputs[name] = adapter
	}
	adapterMu.RUnlock()

	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	for name, old := range defaultLogger.outputs {
		if _, kept := outputs[name]; !kept && old != nil {
			old.Destroy()
		}
	}
	defaultLogger.outputs = outputs
	if cfg.Name != "" {
		defaultLogger.name = cfg.Name
	}
	if lv, ok := LevelMap[strings.ToLower(cfg.Level)]; ok {
		defaultLogger.level = lv
	}
	return nil
}

// SetLevel 全局级别, 先于各适配器自身级别过滤
func SetLevel(level int) {
	defaultLogger.mu.Lock()
	defaultLogger.level = level
	defaultLogger.mu.Unlock()
}

// MsgBody 传给适配器的一行日志
type MsgBody struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (l *localLogger) write(level int, msg string, ctx []interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level > l.level || len(l.outputs) == 0 {
		return
	}
	when := time.Now()
	body := MsgBody{
		Time:    when.Format("2006-01-02 15:04:05"),
		Level:   levelNames[level],
		Path:    caller(3),
		Name:    l.name,
		Content: formatContent(msg, ctx),
	}
	line, err := serialize.JsonMarshal(body)
	if err != nil {
		return
	}
	for _, out := range l.outputs {
		if out != nil {
			out.LogWrite(when, string(line), level)
		}
	}
}

// formatContent msg后接 key=value 对, 奇数个ctx时补 MISSING
func formatContent(msg string, ctx []interface{}) string {
	if len(ctx) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(ctx); i += 2 {
		var v interface{} = "MISSING"
		if i+1 < len(ctx) {
			v = ctx[i+1]
		}
		sb.WriteByte(' ')
		fmt.Fprintf(&sb, "%v=%v", ctx[i], v)
	}
	return sb.String()
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???"
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func Error(msg string, ctx ...interface{}) { defaultLogger.write(LevelError, msg, ctx) }

func Warn(msg string, ctx ...interface{}) { defaultLogger.write(LevelWarn, msg, ctx) }

func Info(msg string, ctx ...interface{}) { defaultLogger.write(LevelInfo, msg, ctx) }

func Debug(msg string, ctx ...interface{}) { defaultLogger.write(LevelDebug, msg, ctx) }

func Trace(msg string, ctx ...interface{}) { defaultLogger.write(LevelTrace, msg, ctx) }
