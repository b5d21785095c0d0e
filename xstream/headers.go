package xstream

import (
	"google.golang.org/grpc/metadata"
)

// HeaderCarrier is the multi-valued header set received with a call's open
// completion. It is a wrapper around metadata.MD.
type HeaderCarrier metadata.MD

// NewHeaderCarrier creates an empty header carrier.
func NewHeaderCarrier() HeaderCarrier {
	return HeaderCarrier(metadata.MD{})
}

// FromMD wraps the given metadata without copying it.
func FromMD(md metadata.MD) HeaderCarrier {
	return HeaderCarrier(md)
}

// Get returns the first value associated with the given key.
// If there are no values associated with the key, Get returns "".
func (hc HeaderCarrier) Get(key string) string {
	vals := metadata.MD(hc).Get(key)
	if len(vals) > 0 {
		return vals[0]
	}

	return ""
}

// Set sets the value associated with key to value.
func (hc HeaderCarrier) Set(key string, value string) {
	metadata.MD(hc).Set(key, value)
}

// Add appends the value to the existing values for the given key.
func (hc HeaderCarrier) Add(key string, value string) {
	metadata.MD(hc).Append(key, value)
}

// Keys returns all keys present in the carrier.
func (hc HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(hc))
	for k := range metadata.MD(hc) {
		keys = append(keys, k)
	}

	return keys
}

// Values returns all values associated with the key.
func (hc HeaderCarrier) Values(key string) []string {
	return metadata.MD(hc).Get(key)
}
