// Package types defines shared application data types.
package types

// ExitCode represents the application's exit codes.
type ExitCode int

const (
	// ExitSuccess - Run completed (including dry-run and declined confirmation).
	ExitSuccess ExitCode = 0

	// ExitGenericError - Unspecified generic error.
	ExitGenericError ExitCode = 1

	// ExitConfigError - Configuration error.
	ExitConfigError ExitCode = 2

	// ExitSelectionError - No backup matched the selection.
	ExitSelectionError ExitCode = 3

	// ExitTransferError - Download of the selected archive failed.
	ExitTransferError ExitCode = 4

	// ExitValidationError - Downloaded archive failed the listing pass.
	ExitValidationError ExitCode = 5

	// ExitApplyError - Extraction failed after services were stopped.
	ExitApplyError ExitCode = 6

	// ExitCredentialError - Credential bootstrap failed.
	ExitCredentialError ExitCode = 7

	// ExitSnapshotError - Safety snapshot could not be written.
	ExitSnapshotError ExitCode = 8

	// ExitDiskSpaceError - Insufficient disk space in the work directory.
	ExitDiskSpaceError ExitCode = 12

	// ExitPanicError - Unhandled panic caught.
	ExitPanicError ExitCode = 13

	// ExitInterrupted - Run cancelled by SIGINT/SIGTERM.
	ExitInterrupted ExitCode = 130
)

// String returns a human-readable description of the exit code.
func (e ExitCode) String() string {
	switch e {
	case ExitSuccess:
		return "success"
	case ExitGenericError:
		return "generic error"
	case ExitConfigError:
		return "configuration error"
	case ExitSelectionError:
		return "selection error"
	case ExitTransferError:
		return "transfer error"
	case ExitValidationError:
		return "validation error"
	case ExitApplyError:
		return "apply error"
	case ExitCredentialError:
		return "credential error"
	case ExitSnapshotError:
		return "snapshot error"
	case ExitDiskSpaceError:
		return "disk space error"
	case ExitPanicError:
		return "panic error"
	case ExitInterrupted:
		return "interrupted"
	default:
		return "unknown error"
	}
}

// Int returns the exit code as an int.
func (e ExitCode) Int() int {
	return int(e)
}
