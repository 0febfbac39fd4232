package apperrors

import "errors"

// ErrAccountNotFound indicates the referenced account does not exist.
// Terminal: account identifiers are not created by this engine.
var ErrAccountNotFound = errors.New("account not found")

// ErrInsufficientLimit indicates a debit would push the balance below the
// account's negative credit limit. Terminal; never retried automatically.
var ErrInsufficientLimit = errors.New("insufficient limit")

// ErrConcurrentModification indicates the account row changed between the
// read and the version-conditioned write. Retryable by re-reading and
// recomputing, never by resubmitting the same expected version.
var ErrConcurrentModification = errors.New("concurrent modification")

// ErrInfrastructure indicates the store, cache or queue failed.
var ErrInfrastructure = errors.New("infrastructure error")

// ErrDuplicate indicates a transaction record with the same ID was already
// committed. Surfaces only on relay redelivery, where it means the message
// was applied before the acknowledgment made it back to the queue.
var ErrDuplicate = errors.New("transaction already recorded")

// ErrCacheMiss indicates the requested snapshot is absent from the read
// cache. Absence is never an account state; callers fall back to the store.
var ErrCacheMiss = errors.New("cache miss")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")
