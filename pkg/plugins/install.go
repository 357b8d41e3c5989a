package plugins

import (
	"errors"
	"fmt"
	"io"

	"mercator-hq/warden/pkg/config"
	"mercator-hq/warden/pkg/interceptor"
)

// Binding is one interceptor installed on one method.
type Binding struct {
	Plugin string
	Type   string
	Method interceptor.MethodKey
}

// Installation is the result of Install.
type Installation struct {
	// Interceptors are the created interceptors in declaration order.
	Interceptors []interceptor.Interceptor

	// Bindings list every registration made.
	Bindings []Binding
}

// Close releases the resources held by the installed interceptors.
func (in *Installation) Close() error {
	var errs []error
	for _, ic := range in.Interceptors {
		if c, ok := ic.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", ic.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Install creates one interceptor per enabled plugin and registers it on
// every key matched by one of its pointcuts. Plugins are registered in
// declaration order, which is the order they run at entry. Keys are
// declared even when no plugin matches them, and nothing is sealed.
func Install(reg *interceptor.Registry, plugins []config.PluginConfig, keys []interceptor.MethodKey, deps Deps) (*Installation, error) {
	logger := deps.logger()
	in := &Installation{}

	for _, key := range keys {
		reg.Declare(key)
	}

	for _, p := range plugins {
		if p.Disabled {
			continue
		}

		ic, err := NewInterceptor(p, deps)
		if err != nil {
			_ = in.Close()
			return nil, err
		}
		in.Interceptors = append(in.Interceptors, ic)

		for _, key := range keys {
			if !matchesAny(key, pointcuts(p)) {
				continue
			}
			if err := reg.Register(key, ic); err != nil {
				_ = in.Close()
				return nil, fmt.Errorf("failed to install plugin %q on %s: %w", p.Name, key, err)
			}
			in.Bindings = append(in.Bindings, Binding{Plugin: p.Name, Type: p.Type, Method: key})
		}
	}

	logger.Info("plugins installed",
		"plugins", len(in.Interceptors),
		"methods", len(keys),
		"bindings", len(in.Bindings),
	)
	return in, nil
}

func pointcuts(p config.PluginConfig) []string {
	if len(p.Pointcuts) == 0 {
		return []string{config.DefaultPointcut}
	}
	return p.Pointcuts
}

func matchesAny(key interceptor.MethodKey, patterns []string) bool {
	for _, pattern := range patterns {
		if key.Match(pattern) {
			return true
		}
	}
	return false
}
