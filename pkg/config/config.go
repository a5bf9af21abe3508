package config

import (
	"errors"
	"sync"

	"github.com/pumpfunds/copytrader/pkg/config/loader"
	"github.com/pumpfunds/copytrader/pkg/config/loader/memory"
	"github.com/pumpfunds/copytrader/pkg/config/reader"
	"github.com/pumpfunds/copytrader/pkg/config/reader/json"
	"github.com/pumpfunds/copytrader/pkg/config/source"
)

// Config 配置管理入口
type Config interface {
	// Load config sources
	Load(source ...source.Source) error
	// Scan the merged config into v
	Scan(v interface{}) error
	// Get a value at the path
	Get(path ...string) reader.Value
	// Bytes returns the merged config as raw bytes
	Bytes() []byte
	// Sync re-reads all sources
	Sync() error
	Close() error
}

type Options struct {
	Loader loader.Loader
	Reader reader.Reader
	Source []source.Source
}

type Option func(o *Options)

type config struct {
	opts Options

	sync.RWMutex
	vals reader.Values
}

// DefaultConfig 包级默认配置实例
var DefaultConfig = NewConfig()

func NewConfig(opts ...Option) Config {
	options := Options{
		Loader: memory.NewLoader(),
		Reader: json.NewReader(),
	}
	for _, o := range opts {
		o(&options)
	}

	c := &config{opts: options}
	if len(options.Source) > 0 {
		_ = c.Load(options.Source...)
	}
	return c
}

func (c *config) Load(sources ...source.Source) error {
	if err := c.opts.Loader.Load(sources...); err != nil {
		return err
	}
	return c.refresh()
}

func (c *config) refresh() error {
	snap, err := c.opts.Loader.Snapshot()
	if err != nil {
		return err
	}
	vals, err := c.opts.Reader.Values(snap.ChangeSet)
	if err != nil {
		return err
	}

	c.Lock()
	c.vals = vals
	c.Unlock()
	return nil
}

func (c *config) Scan(v interface{}) error {
	c.RLock()
	defer c.RUnlock()
	if c.vals == nil {
		return errors.New("config not loaded")
	}
	return c.vals.Scan(v)
}

func (c *config) Get(path ...string) reader.Value {
	c.RLock()
	defer c.RUnlock()
	if c.vals == nil {
		panic("config not loaded")
	}
	return c.vals.Get(path...)
}

func (c *config) Bytes() []byte {
	c.RLock()
	defer c.RUnlock()
	if c.vals == nil {
		return nil
	}
	return c.vals.Bytes()
}

func (c *config) Sync() error {
	if err := c.opts.Loader.Sync(); err != nil {
		return err
	}
	return c.refresh()
}

func (c *config) Close() error {
	return c.opts.Loader.Close()
}

// Load 使用默认实例加载配置源
func Load(sources ...source.Source) error {
	return DefaultConfig.Load(sources...)
}

// Scan 将默认实例的合并配置解析到v
func Scan(v interface{}) error {
	return DefaultConfig.Scan(v)
}

// Get 获取默认实例指定路径的配置值
func Get(path ...string) reader.Value {
	return DefaultConfig.Get(path...)
}
