package stream

import (
	"github.com/go-pantheon/fabrica-stream/conf"
	"github.com/go-pantheon/fabrica-stream/stats"
)

type Option func(o *Options)

func WithConf(c conf.Stream) Option {
	return func(o *Options) {
		o.conf = c
	}
}

func WithStats(s *stats.Streams) Option {
	return func(o *Options) {
		o.stats = s
	}
}

type Options struct {
	conf  conf.Stream
	stats *stats.Streams
}

func NewOptions(opts ...Option) *Options {
	o := &Options{
		conf: conf.Default().Stream,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *Options) Conf() conf.Stream {
	return o.conf
}

func (o *Options) Stats() *stats.Streams {
	return o.stats
}
