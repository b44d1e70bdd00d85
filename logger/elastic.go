package logger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/sea-project/sea-sm2/util/serialize"
)

type elasticLogger struct {
	Addr     string `json:"addr"`
	Index    string `json:"index"`
	Level    string `json:"level"`
	LogLevel int    `json:"-"`
	Es       *elasticsearch.Client
	Mu       sync.RWMutex
}

type ElasticLogBody struct {
	Level     string    `json:"level"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	TimeStamp time.Time `json:"timestamp"`
}

// Init 初始化
func (e *elasticLogger) Init(jsonConfig string) error {
	if len(jsonConfig) == 0 {
		return nil
	}

	err := serialize.JsonUnMarshal([]byte(jsonConfig), e)
	if err != nil {
		return err
	}
	if e.Index == "" {
		e.Index = "sea-sm2"
	}
	if lv, ok := LevelMap[e.Level]; ok {
		e.LogLevel = lv
	}
	return e.connectElastic()
}

// LogWrite 写操作
func (e *elasticLogger) LogWrite(when time.Time, msgText interface{}, level int) error {
	if level > e.LogLevel {
		return nil
	}

	msg, ok := msgText.(string)
	if !ok {
		return nil
	}

	e.Mu.RLock()
	es := e.Es
	e.Mu.RUnlock()
	if es == nil {
		if err := e.connectElastic(); err != nil {
			return err
		}
	}

	body := new(MsgBody)
	err := serialize.JsonUnMarshal([]byte(msg), body)
	if err != nil {
		return err
	}

	esBody := new(ElasticLogBody)
	esBody.Name = body.Name
	esBody.Level = body.Level
	esBody.Content = body.Content
	esBody.Path = body.Path
	// es需要时间类型
	esBody.TimeStamp = when.UTC()
	esByte, err := serialize.JsonMarshal(esBody)
	if err != nil {
		return err
	}
	go e.saveMessage(string(esByte))
	return nil
}

// Destroy 销毁
func (e *elasticLogger) Destroy() {
	e.Mu.Lock()
	e.Es = nil
	e.Mu.Unlock()
}

// connectElastic 链接elasticsearch
func (e *elasticLogger) connectElastic() error {
	cfg := elasticsearch.Config{Addresses: []string{e.Addr}}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("get elastic client error %v", err)
	}
	e.Mu.Lock()
	e.Es = es
	e.Mu.Unlock()
	return nil
}

// saveMessage 存储日志到服务器
func (e *elasticLogger) saveMessage(msg string) error {
	e.Mu.RLock()
	es := e.Es
	e.Mu.RUnlock()
	if es == nil {
		return nil
	}

	req := esapi.IndexRequest{
		Index:      e.Index,
		DocumentID: strconv.FormatInt(time.Now().UnixNano(), 10),
		Body:       strings.NewReader(msg),
		Refresh:    "true",
	}
	res, err := req.Do(context.Background(), es)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elastic index error: %s", res.Status())
	}
	return nil
}

func init() {
	Register(AdapterElastic, &elasticLogger{LogLevel: LevelTrace})
}
