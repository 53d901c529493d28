package safefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatReturnsTimeoutError(t *testing.T) {
	prev := osStat
	defer func() { osStat = prev }()
	block := make(chan struct{})
	defer close(block)
	osStat = func(string) (os.FileInfo, error) {
		<-block
		return nil, nil
	}

	start := time.Now()
	_, err := Stat(context.Background(), "/mnt/share", 25*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Stat err = %v; want timeout", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.Op != "stat" || te.Path != "/mnt/share" {
		t.Fatalf("timeout error = %#v", err)
	}
	if time.Since(start) > 250*time.Millisecond {
		t.Fatalf("Stat took too long: %s", time.Since(start))
	}
}

func TestReadDirReturnsTimeoutError(t *testing.T) {
	prev := osReadDir
	defer func() { osReadDir = prev }()
	block := make(chan struct{})
	defer close(block)
	osReadDir = func(string) ([]os.DirEntry, error) {
		<-block
		return nil, nil
	}

	_, err := ReadDir(context.Background(), "/mnt/share", 25*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("ReadDir err = %v; want timeout", err)
	}
}

func TestZeroTimeoutRunsInline(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	entries, err := ReadDir(context.Background(), dir, 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries=%v err=%v", entries, err)
	}
	if _, err := Stat(context.Background(), filepath.Join(dir, "missing"), time.Second); !os.IsNotExist(err) {
		t.Fatalf("Stat missing err = %v", err)
	}
}

func TestStatPropagatesContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Stat(ctx, "/does/not/matter", 50*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("Stat err = %v; want context.Canceled", err)
	}
}
