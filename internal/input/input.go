// Package input reads interactive answers while honoring context cancellation.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrInputAborted signals that interactive input was interrupted, typically
// by Ctrl+C cancelling the context or stdin being closed.
var ErrInputAborted = errors.New("input aborted")

// IsAborted reports whether err means the user aborted the prompt.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInputAborted) || errors.Is(err, context.Canceled)
}

// MapInputError normalizes EOF and closed-descriptor errors to ErrInputAborted.
func MapInputError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return ErrInputAborted
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"use of closed file", "bad file descriptor", "file already closed"} {
		if strings.Contains(msg, marker) {
			return ErrInputAborted
		}
	}
	return err
}

// readWithContext runs read in a goroutine so a blocked terminal read does not
// keep a cancelled run alive.
func readWithContext[T any](ctx context.Context, read func() (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := read()
		ch <- result{v: v, err: MapInputError(err)}
	}()

	var zero T
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, context.DeadlineExceeded
		}
		return zero, ErrInputAborted
	case res := <-ch:
		return res.v, res.err
	}
}

// ReadLineWithContext reads a single line including its newline.
func ReadLineWithContext(ctx context.Context, reader *bufio.Reader) (string, error) {
	return readWithContext(ctx, func() (string, error) {
		return reader.ReadString('\n')
	})
}

// ReadPasswordWithContext reads a secret without echo using readPassword
// (usually term.ReadPassword) on fd.
func ReadPasswordWithContext(ctx context.Context, readPassword func(int) ([]byte, error), fd int) ([]byte, error) {
	if readPassword == nil {
		return nil, errors.New("readPassword function is nil")
	}
	return readWithContext(ctx, func() ([]byte, error) {
		return readPassword(fd)
	})
}

// Confirm asks a yes/no question on out and reads the answer from reader.
// Only an explicit "y" or "yes" confirms; an empty answer means no.
func Confirm(ctx context.Context, reader *bufio.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := ReadLineWithContext(ctx, reader)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
