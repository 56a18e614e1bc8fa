package circuitbreaker

import (
	"context"
	"errors"
)

// Common fallback strategies, usable as the fallback argument of Execute.

// StaticFallback substitutes a fixed value
func StaticFallback(value any) Operation {
	return func(ctx context.Context) (any, error) {
		return value, nil
	}
}

// CacheFallback serves a previously cached value when the primary is
// rejected or fails. A cache miss surfaces as a fallback failure.
func CacheFallback(getCached func() (any, bool)) Operation {
	return func(ctx context.Context) (any, error) {
		if cached, ok := getCached(); ok {
			return cached, nil
		}
		return nil, errors.New("fallback cache miss")
	}
}

// ChainedFallback tries the given fallbacks in order until one succeeds
func ChainedFallback(fallbacks ...Operation) Operation {
	return func(ctx context.Context) (any, error) {
		lastErr := errors.New("no fallbacks supplied")
		for _, fb := range fallbacks {
			value, err := fb(ctx)
			if err == nil {
				return value, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}
