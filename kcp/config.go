package kcp

import (
	"time"

	"github.com/xtaci/smux"
)

type Config struct {
	MTU          int
	DataShards   int
	ParityShards int
	NoDelay      [4]int
	WindowSize   [2]int
	ACKNoDelay   bool
	WriteDelay   bool

	KeepAliveInterval time.Duration
	KeepAliveTimeout  time.Duration
	MaxFrameSize      int
	MaxReceiveBuffer  int
}

func DefaultConfig() Config {
	return Config{
		MTU:               1400,
		DataShards:        10,
		ParityShards:      3,
		NoDelay:           [4]int{1, 10, 2, 1},
		WindowSize:        [2]int{256, 256},
		ACKNoDelay:        true,
		WriteDelay:        false,
		KeepAliveInterval: time.Second * 10,
		KeepAliveTimeout:  time.Second * 30,
		MaxFrameSize:      32768,
		MaxReceiveBuffer:  4194304,
	}
}

func (c Config) smuxConfig() *smux.Config {
	smuxConfig := smux.DefaultConfig()
	smuxConfig.Version = 2
	smuxConfig.KeepAliveInterval = c.KeepAliveInterval
	smuxConfig.KeepAliveTimeout = c.KeepAliveTimeout
	smuxConfig.MaxFrameSize = c.MaxFrameSize
	smuxConfig.MaxReceiveBuffer = c.MaxReceiveBuffer

	return smuxConfig
}
