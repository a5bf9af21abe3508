package file

import (
	"github.com/fsnotify/fsnotify"

	"github.com/pumpfunds/copytrader/pkg/config/source"
)

type watcher struct {
	f *file

	fw   *fsnotify.Watcher
	exit chan bool
}

func newWatcher(f *file) (source.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(f.path); err != nil {
		return nil, err
	}

	return &watcher{
		f:    f,
		fw:   fw,
		exit: make(chan bool),
	}, nil
}

func (w *watcher) Next() (*source.ChangeSet, error) {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil, source.ErrWatcherStopped
			}
			// 编辑器保存时常见rename/remove，需要重新挂载监听
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				_ = w.fw.Remove(w.f.path)
				_ = w.fw.Add(w.f.path)
			}
			c, err := w.f.Read()
			if err != nil {
				return nil, err
			}
			return c, nil
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil, source.ErrWatcherStopped
			}
			return nil, err
		case <-w.exit:
			return nil, source.ErrWatcherStopped
		}
	}
}

func (w *watcher) Stop() error {
	select {
	case <-w.exit:
	default:
		close(w.exit)
	}
	return w.fw.Close()
}
