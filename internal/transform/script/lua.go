// Package script implements the optional per-provider user script hooks
// (§4.5) that can override any of the four transform pipeline hooks. Each
// script runs in a gopher-lua state opened with only the base/table/
// string/math libraries — no "os" or "io" library is ever registered, and
// the base library's file loaders (dofile, loadfile) are removed, so
// scripts have no filesystem or network access.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// maxCPUBudget bounds how long a single hook invocation may run before it
// is killed — the "bounded CPU" half of the sandbox requirement.
const maxCPUBudget = 50 * time.Millisecond

// hookNames are the Lua global function names a script may define. A
// script that defines none of them is legal but inert.
var hookNames = [...]string{"request_out", "request_in", "response_in", "response_out"}

// Registry holds one script source per provider key.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]string
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]string)}
}

// Register installs or replaces the script source for a provider key. The
// source is validated (compiled once) before being stored so a bad script
// fails at publish time, not on the first request that hits it.
func (r *Registry) Register(providerKey, source string) error {
	st, err := newSandboxState()
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.DoString(source); err != nil {
		return fmt.Errorf("script: compile %s: %w", providerKey, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[providerKey] = source
	return nil
}

func (r *Registry) source(providerKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[providerKey]
	return s, ok
}

func newSandboxState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true, CallStackSize: 64})
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(pair.fn), NRet: 0, Protect: true}, lua.LString(pair.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("script: open %s: %w", pair.name, err)
		}
	}
	// The base library's file loaders would reach the filesystem.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	return L, nil
}

// runHook loads the registered source into a fresh state, calls the named
// hook function with in marshaled to JSON, and unmarshals its single
// string return value back into out. Returns ok=false when the provider
// has no script registered, or the script doesn't define this hook.
func runHook[T any](r *Registry, providerKey, hook string, in T) (out T, ok bool, err error) {
	src, has := r.source(providerKey)
	if !has {
		return in, false, nil
	}

	L, err := newSandboxState()
	if err != nil {
		return in, false, err
	}
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), maxCPUBudget)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoString(src); err != nil {
		return in, false, fmt.Errorf("script: load: %w", err)
	}

	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return in, false, nil
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return in, false, fmt.Errorf("script: marshal hook input: %w", err)
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(payload)); err != nil {
		return in, false, fmt.Errorf("script: %s: %w", hook, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	s, isStr := ret.(lua.LString)
	if !isStr {
		return in, false, fmt.Errorf("script: %s must return a JSON string", hook)
	}

	var result T
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return in, false, fmt.Errorf("script: unmarshal %s return value: %w", hook, err)
	}
	return result, true, nil
}

func (r *Registry) RunRequestOut(providerKey string, req uif.RequestUIF) (uif.RequestUIF, bool, error) {
	return runHook(r, providerKey, "request_out", req)
}

func (r *Registry) RunRequestIn(providerKey string, req uif.RequestUIF) (uif.RequestUIF, bool, error) {
	return runHook(r, providerKey, "request_in", req)
}

func (r *Registry) RunResponseIn(providerKey string, resp uif.ResponseUIF) (uif.ResponseUIF, bool, error) {
	return runHook(r, providerKey, "response_in", resp)
}

func (r *Registry) RunResponseOut(providerKey string, resp uif.ResponseUIF) (uif.ResponseUIF, bool, error) {
	return runHook(r, providerKey, "response_out", resp)
}
