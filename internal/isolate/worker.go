package isolate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	v8 "github.com/tommie/v8go"
	"github.com/voidmerge/voidmerge/internal/verror"
)

// wireRequest/wireResponse are the JSON shapes exchanged with the
// guest's global vm() function — one call in, one value out, per
// worker, at a time.
type wireRequest struct {
	Kind    string            `json:"kind"`
	Method  string            `json:"method,omitempty"`
	Path    string            `json:"path,omitempty"`
	BodyB64 string            `json:"bodyB64,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type wireResponse struct {
	Kind             string            `json:"kind"`
	Status           int               `json:"status,omitempty"`
	BodyB64          string            `json:"bodyB64,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	CronIntervalSecs float64           `json:"cronIntervalSecs,omitempty"`
	HasCron          bool              `json:"hasCron,omitempty"`
}

func kindName(k Kind) string {
	switch k {
	case KindCron:
		return "cron"
	case KindCodeConfig:
		return "codeConfig"
	default:
		return "fn"
	}
}

// execCmd is the single in-flight unit a worker's run loop consumes —
// the bounded command channel the pool design calls for.
type execCmd struct {
	req   Request
	reply chan execResult
}

type execResult struct {
	res Response
	err error
}

// worker is a dedicated-OS-thread V8 isolate plus one context, running
// one tenant's code. It processes exactly one execCmd at a time on its
// own goroutine, which calls runtime.LockOSThread so every execution
// runs on one OS thread. Isolate creation and the tenant-code install
// in newWorker run on the caller's goroutine, before that thread lock.
type worker struct {
	id    string
	setup Setup

	iso *v8.Isolate
	ctx *v8.Context

	cmdCh chan execCmd

	shouldTerminate atomic.Bool
}

// newWorker creates an isolate configured per setup, installs the
// bridge and bootstrap, compiles and runs the tenant code once, and
// starts the worker's dedicated goroutine.
func newWorker(id string, setup Setup, host Host) (*worker, error) {
	heap := setup.HeapCap
	if heap == 0 {
		heap = DefaultHeapCap
	}
	iso := v8.NewIsolate(v8.WithResourceConstraints(heap/2, heap))

	ctx := v8.NewContext(iso)
	w := &worker{id: id, setup: setup, iso: iso, ctx: ctx, cmdCh: make(chan execCmd)}

	if err := w.install(host); err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *worker) install(host Host) error {
	cb := func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		raw := ""
		if len(args) > 0 {
			raw = args[0].String()
		}
		result := dispatchSystem(host, w.setup.ContextID, raw)
		v, err := v8.NewValue(w.iso, result)
		if err != nil {
			return w.iso.ThrowException(mustString(w.iso, err.Error()))
		}
		return v
	}
	fn := v8.NewFunctionTemplate(w.iso, cb).GetFunction(w.ctx)
	if err := w.ctx.Global().Set("__vm_system", fn); err != nil {
		return verror.Wrap(verror.Internal, "installing bridge trampoline", err)
	}

	if _, err := w.ctx.RunScript(bootstrapJS, "bootstrap.js"); err != nil {
		return verror.Wrap(verror.Internal, "running bootstrap script", err)
	}

	script, err := w.iso.CompileUnboundScript(w.setup.Code, "tenant.js", v8.CompileOptions{})
	if err != nil {
		return verror.Wrap(verror.GuestError, "compiling tenant code", err)
	}
	if _, err := script.Run(w.ctx); err != nil {
		return verror.Wrap(verror.GuestError, "running tenant code", err)
	}
	return nil
}

func mustString(iso *v8.Isolate, s string) *v8.Value {
	v, _ := v8.NewValue(iso, s)
	return v
}

// run is the worker's dedicated OS thread. It processes one command at
// a time until the command channel is closed.
func (w *worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer w.dispose()

	for cmd := range w.cmdCh {
		res, err := w.exec(cmd.req)
		cmd.reply <- execResult{res: res, err: err}
		if w.shouldTerminate.Load() {
			return
		}
	}
}

// exec invokes the guest vm() function under a forced-termination
// watchdog: if the wall-clock timeout elapses before vm() returns, the
// isolate's execution is forcibly terminated and the worker marks
// itself for disposal.
func (w *worker) exec(req Request) (Response, error) {
	wreq := wireRequest{Kind: kindName(req.Kind)}
	if req.Kind == KindFn {
		wreq.Method = req.Fn.Method
		wreq.Path = req.Fn.Path
		wreq.Headers = req.Fn.Headers
		wreq.BodyB64 = b64(req.Fn.Body)
	}
	reqJSON, err := json.Marshal(wreq)
	if err != nil {
		return Response{}, verror.Wrap(verror.Internal, "marshaling request", err)
	}

	timeout := w.setup.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	timer := time.AfterFunc(timeout, func() {
		w.shouldTerminate.Store(true)
		w.iso.TerminateExecution()
	})
	defer timer.Stop()

	fnVal, err := w.ctx.Global().Get("vm")
	if err != nil {
		return Response{}, verror.Wrap(verror.GuestError, "looking up vm()", err)
	}
	fn, err := fnVal.AsFunction()
	if err != nil {
		return Response{}, verror.New(verror.GuestError, "tenant code did not define a function vm()")
	}
	argVal, err := v8.NewValue(w.iso, string(reqJSON))
	if err != nil {
		return Response{}, verror.Wrap(verror.Internal, "marshaling request value", err)
	}

	resVal, err := fn.Call(w.ctx.Global(), argVal)
	if err != nil {
		if w.iso.IsExecutionTerminating() || w.shouldTerminate.Load() {
			w.shouldTerminate.Store(true)
			if strings.Contains(err.Error(), "heap") || strings.Contains(err.Error(), "memory") {
				return Response{}, verror.Wrap(verror.HeapExhausted, "tenant code exceeded heap cap", err)
			}
			return Response{}, verror.Wrap(verror.Timeout, "tenant code exceeded timeout", err)
		}
		return Response{}, verror.Wrap(verror.GuestError, "tenant code threw", err)
	}

	var wres wireResponse
	if err := json.Unmarshal([]byte(resVal.String()), &wres); err != nil {
		return Response{}, verror.Wrap(verror.GuestError, "parsing vm() response", err)
	}

	res := Response{Kind: req.Kind}
	switch req.Kind {
	case KindFn:
		res.Fn = FnRes{Status: wres.Status, Body: unb64(wres.BodyB64), Headers: wres.Headers}
		if res.Fn.Status < 100 || res.Fn.Status >= 600 {
			return Response{}, verror.New(verror.GuestError, fmt.Sprintf("invalid status %d", res.Fn.Status))
		}
	case KindCodeConfig:
		res.CodeConfig = CodeConfigRes{CronIntervalSecs: wres.CronIntervalSecs, HasCron: wres.HasCron}
	}
	return res, nil
}

// dispose releases the isolate's resources. Called exactly once, from
// the worker's own goroutine when its run loop exits.
func (w *worker) dispose() {
	w.ctx.Close()
	w.iso.Dispose()
}

func b64(b []byte) string {
	if b == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func unb64(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
