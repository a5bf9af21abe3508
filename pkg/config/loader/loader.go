package loader

import (
	"github.com/pumpfunds/copytrader/pkg/config/reader"
	"github.com/pumpfunds/copytrader/pkg/config/source"
)

// Loader manages loading sources
type Loader interface {
	Close() error
	Load(...source.Source) error
	Snapshot() (*Snapshot, error)
	Sync() error
	String() string
}

// Snapshot is a merged ChangeSet
type Snapshot struct {
	// The merged ChangeSet
	ChangeSet *source.ChangeSet
	// Deterministic and comparable version of the snapshot
	Version string
}

type Options struct {
	Reader reader.Reader
	Source []source.Source
}

type Option func(o *Options)

// Copy snapshot
func Copy(s *Snapshot) *Snapshot {
	cs := *(s.ChangeSet)

	return &Snapshot{
		ChangeSet: &cs,
		Version:   s.Version,
	}
}
