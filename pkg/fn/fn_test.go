package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResult(t *testing.T) {
	ok := Ok(42)
	if !ok.IsOk() || ok.IsErr() {
		t.Error("Ok result misreports state")
	}
	if v, err := ok.Unwrap(); v != 42 || err != nil {
		t.Errorf("unexpected unwrap: %d, %v", v, err)
	}

	bad := Err[int](errors.New("boom"))
	if bad.IsOk() {
		t.Error("Err result misreports state")
	}
	if bad.UnwrapOr(7) != 7 {
		t.Error("UnwrapOr should return the fallback")
	}

	if v := FromPair(3, nil); !v.IsOk() {
		t.Error("FromPair with nil error should be ok")
	}
	if v := FromPair(0, errors.New("x")); !v.IsErr() {
		t.Error("FromPair with error should be err")
	}
}

func TestCollect(t *testing.T) {
	all := Collect([]Result[int]{Ok(1), Ok(2), Ok(3)})
	vals, err := all.Unwrap()
	if err != nil || len(vals) != 3 || vals[1] != 2 {
		t.Errorf("unexpected collect: %v, %v", vals, err)
	}

	mixed := Collect([]Result[int]{Ok(1), Errf[int]("bad %d", 2), Ok(3)})
	if _, err := mixed.Unwrap(); err == nil {
		t.Error("Collect should return the first error")
	}
}

func TestThen(t *testing.T) {
	double := Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n * 2) })
	fail := Stage[int, int](func(_ context.Context, _ int) Result[int] { return Errf[int]("nope") })

	if v, _ := Then(double, double)(context.Background(), 3).Unwrap(); v != 12 {
		t.Errorf("expected 12, got %d", v)
	}
	if _, err := Then(fail, double)(context.Background(), 3).Unwrap(); err == nil {
		t.Error("expected short-circuit on first stage error")
	}
}

func TestParMap_PreservesOrder(t *testing.T) {
	in := []int{5, 4, 3, 2, 1}
	out := ParMap(in, 2, func(n int) int { return n * 10 })
	for i, v := range out {
		if v != in[i]*10 {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}
	if got := ParMap([]int(nil), 2, func(n int) int { return n }); len(got) != 0 {
		t.Errorf("empty input should give empty output, got %d", len(got))
	}
}

func TestRetry_EventualSuccess(t *testing.T) {
	attempts := 0
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
	res := Retry(context.Background(), opts, func(_ context.Context) Result[string] {
		attempts++
		if attempts < 3 {
			return Errf[string]("transient")
		}
		return Ok("done")
	})
	v, err := res.Unwrap()
	if err != nil || v != "done" {
		t.Fatalf("unexpected result: %q, %v", v, err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	opts := RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	res := Retry(context.Background(), opts, func(_ context.Context) Result[int] {
		return Errf[int]("always")
	})
	if _, err := res.Unwrap(); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Second, MaxWait: time.Second}
	res := Retry(ctx, opts, func(_ context.Context) Result[int] {
		return Errf[int]("fail")
	})
	if _, err := res.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
