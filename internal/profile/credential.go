package profile

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
)

// CredentialFunc returns the current provider credential. It is evaluated on
// every synthesis so a rotated key takes effect without a restart.
type CredentialFunc func() string

// EnvCredential reads the first non-empty environment variable among keys.
func EnvCredential(keys ...string) CredentialFunc {
	return func() string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return ""
	}
}

// StaticCredential always returns v.
func StaticCredential(v string) CredentialFunc {
	return func() string { return v }
}

// ChainCredential returns the first non-empty value produced by fns.
func ChainCredential(fns ...CredentialFunc) CredentialFunc {
	return func() string {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if v := fn(); v != "" {
				return v
			}
		}
		return ""
	}
}

// ReloadableCredential holds a credential that can be swapped at runtime,
// for example when the config file is rewritten.
type ReloadableCredential struct {
	v atomic.Value
}

func (r *ReloadableCredential) Set(v string) {
	r.v.Store(strings.TrimSpace(v))
}

func (r *ReloadableCredential) Get() string {
	v, _ := r.v.Load().(string)
	return v
}

// Func adapts r to a CredentialFunc.
func (r *ReloadableCredential) Func() CredentialFunc {
	return r.Get
}

// MaskedEnvPresence reports, for each key, whether it is set and how long the
// value is. No part of the value is revealed.
func MaskedEnvPresence(keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			out[k] = fmt.Sprintf("set(len=%d)", len(v))
		} else {
			out[k] = "missing"
		}
	}
	return out
}
