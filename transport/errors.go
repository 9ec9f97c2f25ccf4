package transport

import (
	"errors"
	"fmt"
)

// Code is a transport-native error code. The zero value means success.
type Code int

// Transport error codes.
const (
	Success Code = iota
	ErrBuffer
	ErrCount
	ErrType
	ErrTag
	ErrRank
	ErrTruncate
	ErrRequest
	ErrComm
	ErrPending
)

var codeStrings = map[Code]string{
	Success:     "success",
	ErrBuffer:   "invalid buffer",
	ErrCount:    "invalid count argument",
	ErrType:     "invalid datatype argument",
	ErrTag:      "invalid tag argument",
	ErrRank:     "invalid rank",
	ErrTruncate: "message truncated on receive",
	ErrRequest:  "invalid request handle",
	ErrComm:     "invalid communicator",
	ErrPending:  "operation still pending",
}

func (c Code) Error() string {
	return ErrorString(c)
}

// ErrorString translates an error returned by the transport into a human
// readable string. Errors that do not carry a Code are printed as is.
func ErrorString(err error) string {
	if err == nil {
		return codeStrings[Success]
	}

	var code Code
	if errors.As(err, &code) {
		s, ok := codeStrings[code]
		if !ok {
			return fmt.Sprintf("unknown transport error %d", int(code))
		}

		return s
	}

	return err.Error()
}

// CodeOf extracts the transport code of an error. Errors that do not carry a
// code map to ErrComm.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}

	var code Code
	if errors.As(err, &code) {
		return code
	}

	return ErrComm
}
