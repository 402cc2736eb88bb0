package session

import (
	"errors"

	"github.com/zhouzirui/shopally-web/backend/internal/service/backend"
)

var (
	ErrBasketFull         = errors.New("comparison basket is full")
	ErrBasketSize         = errors.New("comparison basket size out of range")
	ErrComparisonInFlight = errors.New("comparison already running")
	ErrSaveUnavailable    = errors.New("saved items unavailable")
)

// Notice is a failure with a message meant for the shopper. Validation
// notices wrap one of the sentinel errors above; backend notices wrap the
// *backend.APIError.
type Notice struct {
	Message string
	Err     error
}

func (n *Notice) Error() string {
	if n.Err == nil {
		return n.Message
	}
	return n.Message + ": " + n.Err.Error()
}

func (n *Notice) Unwrap() error {
	return n.Err
}

// AsNotice unwraps err into a *Notice.
func AsNotice(err error) (*Notice, bool) {
	var n *Notice
	if errors.As(err, &n) {
		return n, true
	}
	return nil, false
}

// IsValidation reports whether err was rejected locally, before any request.
func IsValidation(err error) bool {
	return errors.Is(err, ErrBasketFull) || errors.Is(err, ErrBasketSize) || errors.Is(err, ErrComparisonInFlight)
}

func compareNotice(err error) *Notice {
	if apiErr, ok := backend.AsAPIError(err); ok && apiErr.Kind == backend.KindStatus {
		message := apiErr.Message
		if message == "" {
			message = "Unknown error"
		}
		return &Notice{Message: "Compare failed: " + message, Err: err}
	}
	return &Notice{Message: "Compare failed due to an unexpected error.", Err: err}
}
