package cerrors

import (
	"errors"
	"testing"

	"github.com/palantir/stacktrace"
	"github.com/stretchr/testify/assert"
)

func TestErrorRendersAsJSON(t *testing.T) {
	err := Error{ErrorCode: ErrorTypeTimeout, Reason: "node not ready", Target: "{nodeName: worker-1}"}
	assert.JSONEq(t, `{"errorCode":"TIMEOUT","reason":"node not ready","target":"{nodeName: worker-1}"}`, err.Error())
}

func TestGetRootCauseAndErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
		wantMsg  string
	}{
		{
			name:     "typed root cause behind propagation",
			err:      stacktrace.Propagate(Error{ErrorCode: ErrorTypeDataLoss, Reason: "missing"}, "verification failed"),
			wantType: ErrorTypeDataLoss,
			wantMsg:  Error{ErrorCode: ErrorTypeDataLoss, Reason: "missing"}.Error(),
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantType: ErrorTypeNonUserFriendly,
			wantMsg:  "boom",
		},
		{
			name:     "generic",
			err:      Generic{Phase: "Inject", Reason: "bad"},
			wantType: ErrorTypeGeneric,
			wantMsg:  "[Inject]: bad",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, code := GetRootCauseAndErrorCode(tt.err)
			assert.Equal(t, tt.wantType, code)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"command failed", Error{ErrorCode: ErrorTypeCommandFailed}, true},
		{"wrapped command failed", stacktrace.Propagate(Error{ErrorCode: ErrorTypeCommandFailed}, "exec"), true},
		{"upgrade connection", errors.New("error dialing backend: unable to upgrade connection"), true},
		{"data loss", Error{ErrorCode: ErrorTypeDataLoss}, false},
		{"plain", errors.New("not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
