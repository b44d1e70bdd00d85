package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sea-project/sea-sm2/util/serialize"
)

// consoleWriter 输出到终端(或任意io.Writer)
type consoleWriter struct {
	Level    string `json:"level"`
	LogLevel int    `json:"-"`
	mu       sync.Mutex
	out      io.Writer
}

var stdConsole = &consoleWriter{LogLevel: LevelTrace, out: os.Stdout}

// Init 初始化
func (c *consoleWriter) Init(jsonConfig string) error {
	if len(jsonConfig) == 0 {
		return nil
	}
	if err := serialize.JsonUnMarshal([]byte(jsonConfig), c); err != nil {
		return err
	}
	if lv, ok := LevelMap[c.Level]; ok {
		c.LogLevel = lv
	}
	return nil
}

// LogWrite 写操作
func (c *consoleWriter) LogWrite(when time.Time, msgText interface{}, level int) error {
	if level > c.LogLevel {
		return nil
	}
	msg, ok := msgText.(string)
	if !ok {
		return nil
	}
	body := new(MsgBody)
	if err := serialize.JsonUnMarshal([]byte(msg), body); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s [%-5s] %s %s: %s\n", body.Time, body.Level, body.Path, body.Name, body.Content)
	return err
}

// Destroy 销毁
func (c *consoleWriter) Destroy() {}

func init() {
	Register(AdapterConsole, stdConsole)
}
