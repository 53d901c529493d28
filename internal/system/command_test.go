package system

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunWithTimeoutReportsTimeout(t *testing.T) {
	slow := RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := RunWithTimeout(context.Background(), slow, 10*time.Millisecond, "systemctl", "stop", "nginx")
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v; want *TimeoutError", err)
	}
	if te.Command != "systemctl stop nginx" {
		t.Fatalf("Command = %q", te.Command)
	}
}

func TestRunWithTimeoutParentCancelIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := RunWithTimeout(ctx, slow, time.Second, "true")
	var te *TimeoutError
	if errors.As(err, &te) {
		t.Fatalf("parent cancellation should not be reported as timeout")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
}

func TestFakeRunner(t *testing.T) {
	fake := NewFakeRunner()
	fake.Outputs["systemctl is-active nginx"] = []byte("active\n")
	fake.Errors["systemctl stop nginx"] = errors.New("exit status 5")

	out, err := fake.Run(context.Background(), "systemctl", "is-active", "nginx")
	if err != nil || string(out) != "active\n" {
		t.Fatalf("unexpected answer %q %v", out, err)
	}
	if _, err := fake.Run(context.Background(), "systemctl", "stop", "nginx"); err == nil {
		t.Fatal("expected configured error")
	}
	calls := fake.Calls()
	if len(calls) != 2 || calls[1] != "systemctl stop nginx" {
		t.Fatalf("calls = %v", calls)
	}
}
