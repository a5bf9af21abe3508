package memory

import (
	"github.com/pumpfunds/copytrader/pkg/config/loader"
	"github.com/pumpfunds/copytrader/pkg/config/reader"
	"github.com/pumpfunds/copytrader/pkg/config/source"
)

func WithSource(s source.Source) loader.Option {
	return func(o *loader.Options) {
		o.Source = append(o.Source, s)
	}
}

// WithReader sets the config reader
func WithReader(r reader.Reader) loader.Option {
	return func(o *loader.Options) {
		o.Reader = r
	}
}
