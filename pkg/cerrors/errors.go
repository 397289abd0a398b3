package cerrors

import (
	"errors"
	"strings"

	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	ErrorTypeNonUserFriendly     ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric             ErrorType = "GENERIC_ERROR"
	ErrorTypeStatusChecks        ErrorType = "STATUS_CHECKS_ERROR"
	ErrorTypeTargetSelection     ErrorType = "TARGET_SELECTION_ERROR"
	ErrorTypeChaosInject         ErrorType = "CHAOS_INJECT_ERROR"
	ErrorTypeChaosRevert         ErrorType = "CHAOS_REVERT_ERROR"
	ErrorTypeTimeout             ErrorType = "TIMEOUT"
	ErrorTypeCommandFailed       ErrorType = "COMMAND_FAILED"
	ErrorTypeDataLoss            ErrorType = "DATA_LOSS"
	ErrorTypeDataCorruption      ErrorType = "DATA_CORRUPTION"
	ErrorTypeHealthCheck         ErrorType = "HEALTH_CHECK_ERROR"
	ErrorTypeUnexpectedBehaviour ErrorType = "UNEXPECTED_BEHAVIOUR"
	ErrorTypeDeployment          ErrorType = "DEPLOYMENT_ERROR"
	ErrorTypeResultCRUD          ErrorType = "RESULT_CRUD_ERROR"
)

// transientReasons are substrings of command and transport failures which are worth retrying
var transientReasons = []string{
	"unable to upgrade connection",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"tls handshake timeout",
	"etcdserver: request timed out",
	"the server is currently unable to handle the request",
}

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present to failstep
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}

// Is reports whether the root cause of err carries the given error code
func Is(err error, code ErrorType) bool {
	if err == nil {
		return false
	}
	if GetErrorType(stacktrace.RootCause(err)) == code {
		return true
	}
	var typed Error
	if errors.As(err, &typed) {
		return typed.ErrorCode == code
	}
	return false
}

// IsTransient reports whether err is a command or transport failure that may succeed on a later attempt
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrorTypeCommandFailed) || Is(err, ErrorTypeTimeout) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, reason := range transientReasons {
		if strings.Contains(msg, reason) {
			return true
		}
	}
	return false
}
