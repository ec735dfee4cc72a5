package download

import (
	"errors"
	"fmt"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	Other Kind = iota
	Timeout
	NetworkError
	PolicyRejected
	SizeMismatch
	IntegrityMismatch
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "Timeout"
	case NetworkError:
		return "NetworkError"
	case PolicyRejected:
		return "PolicyRejected"
	case SizeMismatch:
		return "SizeMismatch"
	case IntegrityMismatch:
		return "IntegrityMismatch"
	default:
		return "Other"
	}
}

// label is the metrics form of k.
func (k Kind) label() string {
	switch k {
	case Timeout:
		return "timeout"
	case NetworkError:
		return "network_error"
	case PolicyRejected:
		return "policy_rejected"
	case SizeMismatch:
		return "size_mismatch"
	case IntegrityMismatch:
		return "integrity_mismatch"
	default:
		return "other"
	}
}

// Failure is the error returned by Fetch.
type Failure struct {
	Kind Kind
	URL  string
	Msg  string
	Err  error
}

func fail(kind Kind, url, msg string, err error) *Failure {
	return &Failure{Kind: kind, URL: url, Msg: msg, Err: err}
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("download %s: %s: %s: %v", f.URL, f.Kind, f.Msg, f.Err)
	}
	return fmt.Sprintf("download %s: %s: %s", f.URL, f.Kind, f.Msg)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the Kind of err, or Other when err is not a *Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return Other
}
