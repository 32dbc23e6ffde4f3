package vocab

import (
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-vocabulary-store/retry"
	"github.com/google/uuid"
)

// Text codes carried by every error surfaced from this package.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeAccessDenied   = "ACCESS_DENIED"
	CodeNotFound       = "NOT_FOUND"
	CodeTransientStore = "TRANSIENT_STORE_ERROR"
	CodeTerminalStore  = "TERMINAL_STORE_ERROR"
)

// ErrNotFound is returned by backends for a missing record.
var ErrNotFound = errors.New("vocab: record not found")

// op describes a surfaced error: the operation, the ids involved and when the
// operation started on the service clock.
type op struct {
	name    string
	ids     []string
	now     func() time.Time
	started time.Time
}

func newOp(name string, now func() time.Time, started time.Time, ids ...uuid.UUID) op {
	o := op{name: name, now: now, started: started}
	for _, id := range ids {
		o.ids = append(o.ids, id.String())
	}
	return o
}

func (o op) metadata() map[string]any {
	meta := map[string]any{"op": o.name}
	if len(o.ids) > 0 {
		meta["ids"] = o.ids
	}
	if !o.started.IsZero() && o.now != nil {
		meta["elapsed_ms"] = o.now().Sub(o.started).Milliseconds()
	}
	return meta
}

func validationError(o op, err error) error {
	verr := goerrors.FromOzzoValidation(err, "invalid input")
	return verr.WithTextCode(CodeValidation).WithMetadata(o.metadata())
}

func validationMessage(o op, message string) error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(CodeValidation).
		WithMetadata(o.metadata())
}

func accessDenied(o op) error {
	return goerrors.New("access denied", goerrors.CategoryAuthz).
		WithTextCode(CodeAccessDenied).
		WithMetadata(o.metadata())
}

func notFound(o op) error {
	return goerrors.New("not found", goerrors.CategoryNotFound).
		WithTextCode(CodeNotFound).
		WithMetadata(o.metadata())
}

// storeError classifies a backend failure. Errors already carrying one of our
// codes keep it. Exhausted retries and transient failures surface as
// retryable TransientStoreError, everything else as TerminalStoreError.
func storeError(o op, err error, state *retry.State) error {
	if err == nil {
		return nil
	}
	if code := textCode(err); code != "" {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return notFound(o)
	}

	meta := o.metadata()
	if state != nil {
		meta["attempts"] = state.Attempts
	}

	if errors.Is(err, retry.ErrExhausted) || retry.IsTransient(err) {
		return goerrors.WrapRetryable(err, goerrors.CategoryExternal, "store unavailable").
			WithTextCode(CodeTransientStore).
			WithMetadata(meta)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "store failure").
		WithTextCode(CodeTerminalStore).
		WithMetadata(meta)
}

func textCode(err error) string {
	var rerr *goerrors.RetryableError
	if errors.As(err, &rerr) && rerr.BaseError != nil {
		return rerr.TextCode
	}
	var e *goerrors.Error
	if errors.As(err, &e) {
		return e.TextCode
	}
	return ""
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return textCode(err) == CodeValidation }

// IsAccessDenied reports whether err is an AccessDenied error.
func IsAccessDenied(err error) bool { return textCode(err) == CodeAccessDenied }

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return textCode(err) == CodeNotFound }

// IsTransientStore reports whether err is a TransientStoreError.
func IsTransientStore(err error) bool { return textCode(err) == CodeTransientStore }

// IsTerminalStore reports whether err is a TerminalStoreError.
func IsTerminalStore(err error) bool { return textCode(err) == CodeTerminalStore }

// Metadata returns the structured context attached to err.
func Metadata(err error) map[string]any {
	var rerr *goerrors.RetryableError
	if errors.As(err, &rerr) && rerr.BaseError != nil {
		return rerr.Metadata
	}
	var e *goerrors.Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
