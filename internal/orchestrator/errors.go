package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tis24dev/stackrestore/internal/input"
	"github.com/tis24dev/stackrestore/internal/types"
)

// Category classifies why a run stopped.
type Category string

const (
	CategoryConfig      Category = "config"
	CategorySelection   Category = "selection"
	CategoryTransfer    Category = "transfer"
	CategoryValidation  Category = "validation"
	CategorySnapshot    Category = "snapshot"
	CategoryApply       Category = "apply"
	CategoryCredential  Category = "credential"
	CategoryDiskSpace   Category = "disk-space"
	CategoryInterrupted Category = "interrupted"
	CategoryGeneric     Category = "generic"
)

var categoryExit = map[Category]types.ExitCode{
	CategoryConfig:      types.ExitConfigError,
	CategorySelection:   types.ExitSelectionError,
	CategoryTransfer:    types.ExitTransferError,
	CategoryValidation:  types.ExitValidationError,
	CategorySnapshot:    types.ExitSnapshotError,
	CategoryApply:       types.ExitApplyError,
	CategoryCredential:  types.ExitCredentialError,
	CategoryDiskSpace:   types.ExitDiskSpaceError,
	CategoryInterrupted: types.ExitInterrupted,
	CategoryGeneric:     types.ExitGenericError,
}

// RunError is a fatal pipeline failure.
type RunError struct {
	Category Category
	Stage    string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for the category.
func (e *RunError) ExitCode() types.ExitCode {
	if code, ok := categoryExit[e.Category]; ok {
		return code
	}
	return types.ExitGenericError
}

// NewRunError wraps err. Cancellation always classifies as interrupted.
func NewRunError(category Category, stage string, err error) *RunError {
	if errors.Is(err, context.Canceled) || input.IsAborted(err) {
		category = CategoryInterrupted
	}
	return &RunError{Category: category, Stage: stage, Err: err}
}

// ExitCodeFor maps any error returned by the pipeline to an exit code.
func ExitCodeFor(err error) types.ExitCode {
	if err == nil {
		return types.ExitSuccess
	}
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.ExitCode()
	}
	if errors.Is(err, context.Canceled) || input.IsAborted(err) {
		return types.ExitInterrupted
	}
	return types.ExitGenericError
}

// CategoryOf returns the category of err, generic when unclassified.
func CategoryOf(err error) Category {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Category
	}
	if errors.Is(err, context.Canceled) || input.IsAborted(err) {
		return CategoryInterrupted
	}
	return CategoryGeneric
}

// Diagnostic renders the single failure line printed on exit.
func Diagnostic(err error) string {
	return fmt.Sprintf("restore failed [%s]: %v", CategoryOf(err), err)
}
