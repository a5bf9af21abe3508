package source

import (
	"context"
	"sync"

	"github.com/pumpfunds/copytrader/internal/model"
)

// SwapEventSource swap事件数据源接口
type SwapEventSource interface {
	// Start 启动数据源
	Start(ctx context.Context) error

	// Stop 停止数据源
	Stop() error

	// Subscribe 订阅swap事件流
	Subscribe() <-chan *model.SwapEvent

	// Errors 错误通道
	Errors() <-chan error

	// String 数据源名称
	String() string
}

// Manager 数据源管理器，将多个数据源扇入同一事件流
type Manager struct {
	sources   []SwapEventSource
	eventChan chan *model.SwapEvent
	errorChan chan error
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager 创建数据源管理器
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sources:   make([]SwapEventSource, 0),
		eventChan: make(chan *model.SwapEvent, 10_000), // 缓冲通道
		errorChan: make(chan error, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddSource 添加数据源
func (m *Manager) AddSource(source SwapEventSource) {
	m.sources = append(m.sources, source)
}

// Start 启动所有数据源
func (m *Manager) Start() error {
	for _, source := range m.sources {
		if err := source.Start(m.ctx); err != nil {
			return err
		}

		// 启动协程监听每个数据源
		m.wg.Add(1)
		go m.listenSource(source)
	}

	return nil
}

// Stop 停止所有数据源，等全部监听协程退出后再关闭扇入通道
func (m *Manager) Stop() error {
	// 取消上下文
	m.cancel()

	// 停止所有数据源
	for _, source := range m.sources {
		if err := source.Stop(); err != nil {
			return err
		}
	}

	m.wg.Wait()

	// 关闭通道
	close(m.eventChan)
	close(m.errorChan)

	return nil
}

// Events 获取swap事件流
func (m *Manager) Events() <-chan *model.SwapEvent {
	return m.eventChan
}

// Errors 获取错误流
func (m *Manager) Errors() <-chan error {
	return m.errorChan
}

// listenSource 监听单个数据源
func (m *Manager) listenSource(source SwapEventSource) {
	defer m.wg.Done()

	eventChan := source.Subscribe()
	errChan := source.Errors()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			select {
			case m.eventChan <- event:
			case <-m.ctx.Done():
				return
			}
		case err, ok := <-errChan:
			if !ok {
				return
			}
			select {
			case m.errorChan <- err:
			case <-m.ctx.Done():
				return
			}
		}
	}
}
