package sparql

import "fmt"

type options struct {
	// queryCacheSize is the number of parsed queries kept
	queryCacheSize int
	// filterCacheSize is the number of compiled filter programs kept
	filterCacheSize int
}

func defaultOptions() *options {
	return &options{
		queryCacheSize:  128,
		filterCacheSize: 512,
	}
}

type Option func(*options) error

// WithQueryCacheSize sets the number of parsed queries kept
func WithQueryCacheSize(size int) Option {
	return func(o *options) error {
		if size <= 0 {
			return fmt.Errorf("query cache size must be positive, got %d", size)
		}
		o.queryCacheSize = size
		return nil
	}
}

// WithFilterCacheSize sets the number of compiled filters kept
func WithFilterCacheSize(size int) Option {
	return func(o *options) error {
		if size <= 0 {
			return fmt.Errorf("filter cache size must be positive, got %d", size)
		}
		o.filterCacheSize = size
		return nil
	}
}
