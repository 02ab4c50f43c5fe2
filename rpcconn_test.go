package rpcconn_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/relaywire/rpcconn"
	"github.com/relaywire/rpcconn/markers"
	"github.com/relaywire/rpcconn/proxy"
	"github.com/relaywire/rpcconn/transport/looptransport"
)

// fixture is the root object exposed by most tests below: a minimal stand-in
// for cmd/rpcconn/demoroot's Root, scoped to exactly what each test needs.
type fixture struct {
	counter int
}

func (f *fixture) Add(ctx context.Context, a, b float64) (float64, error) {
	return a + b, nil
}

func (f *fixture) Fail(ctx context.Context, reason string) (any, error) {
	return nil, &rpcconn.RemoteError{Name: "DemoError", Message: reason}
}

func (f *fixture) Echo(ctx context.Context, v any) (any, error) {
	return v, nil
}

func (f *fixture) InvokeCallback(ctx context.Context, cb *proxy.Remote, arg any) (any, error) {
	return cb.Call(ctx, "", arg)
}

func (f *fixture) NewOpaqueToken(ctx context.Context) (markers.ProxyMarker, error) {
	return markers.HandleOf(&struct{ id int }{id: 1}), nil
}

type counterTarget struct{ n int64 }

func (c *counterTarget) Increment(ctx context.Context, delta int64) (int64, error) {
	c.n += delta
	return c.n, nil
}

func (f *fixture) NewCounter(ctx context.Context) (markers.ProxyMarker, error) {
	return markers.Proxy(&counterTarget{}), nil
}

// pair builds an Expose/Wrap pair over an in-memory loopback transport and
// returns both ends plus a teardown func, grounded on the same
// paired-Endpoint pattern transport/looptransport's own doc comment
// describes for tests.
func pair(t *testing.T, opts ...rpcconn.Option) (*proxy.Remote, func()) {
	t.Helper()
	a, b, err := looptransport.New()
	if err != nil {
		t.Fatalf("build loopback transport: %v", err)
	}
	closer, err := rpcconn.Expose(&fixture{}, a, opts...)
	if err != nil {
		t.Fatalf("expose: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	remote, err := rpcconn.Wrap(ctx, b, opts...)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	return remote, func() {
		remote.Release()
		_ = closer.Close()
		// Expose's Connection.Close only detaches its dispatcher from a; it
		// does not own the Endpoint (the caller constructed it), so both
		// ends of the loopback must be closed explicitly to stop their
		// readLoop goroutines and let goleak's check pass.
		_ = a.Close()
		_ = b.Close()
	}
}

func TestArithmeticRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote, done := pair(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := remote.Call(ctx, "add", 2.0, 40.0)
	if err != nil {
		t.Fatalf("call add: %v", err)
	}
	sum, ok := result.(float64)
	if !ok || sum != 42.0 {
		t.Fatalf("add: got %v (%T), want 42.0", result, result)
	}
}

func TestErrorPropagation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote, done := pair(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := remote.Call(ctx, "fail", "boom")
	if err == nil {
		t.Fatal("call fail: expected an error, got nil")
	}
	var remoteErr *rpcconn.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("call fail: expected *rpcconn.RemoteError, got %T (%v)", err, err)
	}
	if remoteErr.Name != "DemoError" || remoteErr.Message != "boom" {
		t.Fatalf("call fail: got %+v, want Name=DemoError Message=boom", remoteErr)
	}
}

func TestCallbackRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote, done := pair(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var sawArg any
	cb := markers.Func(func(_ context.Context, args []any) (any, error) {
		if len(args) > 0 {
			sawArg = args[0]
		}
		return "callback-result", nil
	})

	result, err := remote.Call(ctx, "invokeCallback", cb, "hello")
	if err != nil {
		t.Fatalf("call invokeCallback: %v", err)
	}
	if result != "callback-result" {
		t.Fatalf("invokeCallback result: got %v, want callback-result", result)
	}
	if sawArg != "hello" {
		t.Fatalf("callback saw arg %v, want hello", sawArg)
	}
}

func TestCyclicEcho(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote, done := pair(t, rpcconn.WithNestedProxies())
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m := map[string]any{"name": "cycle"}
	m["self"] = m

	result, err := remote.Call(ctx, "echo", m)
	if err != nil {
		t.Fatalf("call echo: %v", err)
	}
	dm, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("echo result type %T, want map[string]any", result)
	}
	self, ok := dm["self"].(map[string]any)
	if !ok {
		t.Fatalf("echo result[\"self\"] type %T, want map[string]any", dm["self"])
	}
	if reflect.ValueOf(self).Pointer() != reflect.ValueOf(dm).Pointer() {
		t.Fatal("echo did not preserve the self-reference: decoded map and its \"self\" entry are distinct objects")
	}
}

func TestSharedSubgraphPreserved(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote, done := pair(t, rpcconn.WithNestedProxies())
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	shared := map[string]any{"v": 1}
	graph := map[string]any{"left": shared, "right": shared}

	result, err := remote.Call(ctx, "echo", graph)
	if err != nil {
		t.Fatalf("call echo: %v", err)
	}
	dg, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("echo result type %T, want map[string]any", result)
	}
	left, _ := dg["left"].(map[string]any)
	right, _ := dg["right"].(map[string]any)
	if left == nil || right == nil {
		t.Fatalf("echo result missing left/right: %#v", dg)
	}
	if reflect.ValueOf(left).Pointer() != reflect.ValueOf(right).Pointer() {
		t.Fatal("echo did not preserve sharing: \"left\" and \"right\" decoded to distinct objects")
	}
}

func TestOpaqueHandleRejectsMemberAccess(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote, done := pair(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := remote.Call(ctx, "newOpaqueToken")
	if err != nil {
		t.Fatalf("call newOpaqueToken: %v", err)
	}
	token, ok := result.(*proxy.Remote)
	if !ok {
		t.Fatalf("newOpaqueToken result type %T, want *proxy.Remote", result)
	}
	if !token.Opaque() {
		t.Fatal("newOpaqueToken result is not an opaque handle")
	}
	if _, err := token.Call(ctx, "anything"); err == nil {
		t.Fatal("expected opaque handle to reject Call, got nil error")
	}
	if _, err := token.Get(ctx, "anything"); err == nil {
		t.Fatal("expected opaque handle to reject Get, got nil error")
	}
}

func TestFullProxyMintingAndCall(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote, done := pair(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := remote.Call(ctx, "newCounter")
	if err != nil {
		t.Fatalf("call newCounter: %v", err)
	}
	counter, ok := result.(*proxy.Remote)
	if !ok {
		t.Fatalf("newCounter result type %T, want *proxy.Remote", result)
	}
	defer counter.Release()

	// The wire round-trip decodes every JSON number as float64 (decode.go's
	// raw branch unmarshals into a bare `any`), regardless of the exposed
	// method's declared Go return type, so the assertions below compare
	// against float64 rather than the int64 counterTarget.Increment returns.
	v, err := counter.Call(ctx, "increment", int64(5))
	if err != nil {
		t.Fatalf("call increment: %v", err)
	}
	if v != float64(5) {
		t.Fatalf("increment: got %v (%T), want 5", v, v)
	}

	v, err = counter.Call(ctx, "increment", int64(3))
	if err != nil {
		t.Fatalf("call increment: %v", err)
	}
	if v != float64(8) {
		t.Fatalf("increment: got %v (%T), want 8", v, v)
	}
}

func TestIdempotentRelease(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote, done := pair(t)
	defer done()

	remote.Release()
	remote.Release() // must not panic or block
}

func TestDebugModeReportsNonCloneablePath(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	remote, done := pair(t, rpcconn.WithDebug())
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	nested := map[string]any{
		"fn": markers.Func(func(context.Context, []any) (any, error) { return nil, nil }),
	}

	_, err := remote.Call(ctx, "echo", nested)
	if err == nil {
		t.Fatal("expected a non-cloneable error for a nested callable in debug mode, got nil")
	}
	var nc *rpcconn.NonCloneableError
	if !errors.As(err, &nc) {
		t.Fatalf("expected *rpcconn.NonCloneableError, got %T (%v)", err, err)
	}
	if nc.Path == "" {
		t.Fatal("NonCloneableError.Path is empty, want the nested field path")
	}
}
