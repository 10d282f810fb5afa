package testutil

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// SetupRedis starts an in-process Redis and returns a client with a
// FaultHook installed.
func SetupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, *FaultHook) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	hook := &FaultHook{}
	rdb.AddHook(hook)
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr, hook
}

type fault struct {
	names map[string]bool
	err   error
	// lost runs the command on the server and then fails it.
	lost bool
	// afterRun is called once the server has executed the command.
	afterRun func()
}

// FaultHook fails chosen commands. Each armed fault fires once, on the first
// matching command that the server would have accepted. Scripts match as
// "script" and cover both EVALSHA and EVAL.
type FaultHook struct {
	mu     sync.Mutex
	faults []*fault
}

var _ redis.Hook = (*FaultHook)(nil)

// FailNext fails the next matching command before it reaches the server.
func (h *FaultHook) FailNext(name string, err error) {
	h.arm(&fault{names: commandNames(name), err: err})
}

// LoseNextReply lets the next matching command run on the server and then
// fails it, as if the connection dropped before the reply arrived.
func (h *FaultHook) LoseNextReply(name string, err error) {
	h.arm(&fault{names: commandNames(name), err: err, lost: true})
}

// AfterNext calls fn once the next matching command has run on the server.
// If the command's context is done by then, the reply is treated as lost.
func (h *FaultHook) AfterNext(name string, fn func()) {
	h.arm(&fault{names: commandNames(name), afterRun: fn})
}

// Reset drops every armed fault.
func (h *FaultHook) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = nil
}

func (h *FaultHook) arm(f *fault) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = append(h.faults, f)
}

func (h *FaultHook) match(name string) *fault {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.faults {
		if f.names[name] {
			return f
		}
	}
	return nil
}

func (h *FaultHook) disarm(f *fault) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, g := range h.faults {
		if g == f {
			h.faults = append(h.faults[:i], h.faults[i+1:]...)
			return
		}
	}
}

func (h *FaultHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *FaultHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		f := h.match(cmd.Name())
		if f == nil {
			return next(ctx, cmd)
		}

		if !f.lost && f.afterRun == nil {
			h.disarm(f)
			cmd.SetErr(f.err)
			return f.err
		}

		if err := next(ctx, cmd); err != nil {
			// NOSCRIPT and friends: the server ran nothing, stay armed.
			return err
		}
		h.disarm(f)

		if f.afterRun != nil {
			f.afterRun()
			if err := ctx.Err(); err != nil {
				cmd.SetErr(err)
				return err
			}
			return nil
		}
		cmd.SetErr(f.err)
		return f.err
	}
}

func (h *FaultHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func commandNames(name string) map[string]bool {
	if name == "script" {
		return map[string]bool{"evalsha": true, "eval": true}
	}
	return map[string]bool{name: true}
}
