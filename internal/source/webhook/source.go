package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/pumpfunds/copytrader/internal/model"
	"github.com/pumpfunds/copytrader/pkg/logger"
)

const (
	defaultWorkers   = 8
	defaultQueueSize = 4096
)

// Source webhook推送数据源。HTTP处理器收到推送后立即应答，
// 解码与标准化交给固定大小的worker池，单条数据损坏不影响其余条目。
type Source struct {
	eventChan chan *model.SwapEvent
	errChan   chan error
	jobs      chan json.RawMessage

	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSource 创建webhook数据源
func NewSource(workers int) *Source {
	if workers <= 0 {
		workers = defaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Source{
		eventChan: make(chan *model.SwapEvent, 10000),
		errChan:   make(chan error, 100),
		jobs:      make(chan json.RawMessage, defaultQueueSize),
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start 启动worker池
func (s *Source) Start(ctx context.Context) error {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	logger.Info("📨 webhook数据源已启动", logger.Int("workers", s.workers))
	return nil
}

// Stop 停止数据源
func (s *Source) Stop() error {
	s.cancel()
	s.wg.Wait()

	close(s.eventChan)
	close(s.errChan)
	return nil
}

// Subscribe 订阅swap事件流
func (s *Source) Subscribe() <-chan *model.SwapEvent {
	return s.eventChan
}

// Errors 获取错误通道
func (s *Source) Errors() <-chan error {
	return s.errChan
}

// String 数据源名称
func (s *Source) String() string {
	return "webhook"
}

// Handler 返回挂载到HTTP路由的推送处理器。
// 入参是增强交易的JSON数组；入队后立即返回200，处理不阻塞应答。
func (s *Source) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-s.ctx.Done():
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		default:
		}

		var items []json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
			logger.Warn("⚠️ webhook请求体解析失败", logger.FieldErr(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		dropped := 0
		for _, item := range items {
			select {
			case s.jobs <- item:
			default:
				dropped++
			}
		}
		if dropped > 0 {
			logger.Warn("⚠️ webhook处理队列已满，丢弃部分推送",
				logger.Int("dropped", dropped),
				logger.Int("received", len(items)))
		}

		w.WriteHeader(http.StatusOK)
	}
}

func (s *Source) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case raw := <-s.jobs:
			s.handleItem(raw)
		}
	}
}

// handleItem 解码单条推送，失败只上报错误不中断
func (s *Source) handleItem(raw json.RawMessage) {
	var event model.SwapEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		s.sendError(errors.Wrap(err, "decode webhook item"))
		return
	}
	if event.Signature == "" {
		return
	}
	if event.Type != "" && event.Type != "SWAP" {
		return
	}
	s.sendEvent(&event)
}

func (s *Source) sendEvent(event *model.SwapEvent) {
	select {
	case s.eventChan <- event:
	case <-s.ctx.Done():
	}
}

func (s *Source) sendError(err error) {
	select {
	case s.errChan <- err:
	case <-s.ctx.Done():
	}
}
