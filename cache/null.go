package cache

import "context"

// NullBackend always misses on read and no-ops on write. It exists for
// deployments that explicitly want decision caching disabled.
type NullBackend struct{}

func NewNullBackend() *NullBackend { return &NullBackend{} }

func (NullBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NullBackend) Set(context.Context, string, []byte) error        { return nil }
func (NullBackend) Delete(context.Context, string) error             { return nil }
func (NullBackend) HealthCheck(context.Context) error                { return nil }
