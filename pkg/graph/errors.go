package graph

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrHashMismatch     = fmt.Errorf("commit hash mismatch: %w", ErrValidation)
	ErrInvalidLevel     = fmt.Errorf("invalid commit level: %w", ErrValidation)
	ErrInvalidSignature = fmt.Errorf("invalid signature: %w", ErrValidation)
	ErrOwnerMismatch    = fmt.Errorf("repository owner mismatch: %w", ErrValidation)
	ErrInvalidCommitID  = fmt.Errorf("invalid commit id: %w", ErrValidation)
	ErrInvalidRepoID    = fmt.Errorf("invalid repository id: %w", ErrValidation)

	ErrNotFound         = errors.New("not found")
	ErrCommitNotFound   = fmt.Errorf("commit %w", ErrNotFound)
	ErrSnapshotNotFound = fmt.Errorf("snapshot %w", ErrNotFound)

	ErrNotEnoughSuccesses = errors.New("not enough successes")
	ErrNoMasters          = errors.New("no masters")
	ErrStorage            = errors.New("storage failure")
	ErrDecode             = errors.New("decode failure")
)
