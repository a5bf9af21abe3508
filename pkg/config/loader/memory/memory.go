package memory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pumpfunds/copytrader/pkg/config/loader"
	"github.com/pumpfunds/copytrader/pkg/config/reader/json"
	"github.com/pumpfunds/copytrader/pkg/config/source"
)

type memory struct {
	exit chan bool
	opts loader.Options

	sync.RWMutex
	snap    *loader.Snapshot
	sets    []*source.ChangeSet
	sources []source.Source
}

func (m *memory) Load(sources ...source.Source) error {
	for _, s := range sources {
		set, err := s.Read()
		if err != nil {
			return err
		}
		m.Lock()
		m.sources = append(m.sources, s)
		m.sets = append(m.sets, set)
		m.Unlock()
	}
	return m.reload()
}

// reload 重新合并所有变更集并生成新快照
func (m *memory) reload() error {
	m.Lock()
	defer m.Unlock()

	set, err := m.opts.Reader.Merge(m.sets...)
	if err != nil {
		return err
	}

	m.snap = &loader.Snapshot{
		ChangeSet: set,
		Version:   genVer(),
	}
	return nil
}

func (m *memory) Snapshot() (*loader.Snapshot, error) {
	m.RLock()
	defer m.RUnlock()
	if m.snap == nil {
		return nil, errors.New("no snapshot loaded")
	}
	return loader.Copy(m.snap), nil
}

func (m *memory) Sync() error {
	var sets []*source.ChangeSet

	m.RLock()
	sources := make([]source.Source, len(m.sources))
	copy(sources, m.sources)
	m.RUnlock()

	for _, s := range sources {
		set, err := s.Read()
		if err != nil {
			return err
		}
		sets = append(sets, set)
	}

	m.Lock()
	m.sets = sets
	m.Unlock()

	return m.reload()
}

func (m *memory) Close() error {
	select {
	case <-m.exit:
	default:
		close(m.exit)
	}
	return nil
}

func (m *memory) String() string {
	return "memory"
}

func genVer() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

func NewLoader(opts ...loader.Option) loader.Loader {
	options := loader.Options{
		Reader: json.NewReader(),
	}
	for _, o := range opts {
		o(&options)
	}

	m := &memory{
		exit: make(chan bool),
		opts: options,
	}

	if len(options.Source) > 0 {
		_ = m.Load(options.Source...)
	}

	return m
}
