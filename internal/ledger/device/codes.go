package device

import "fmt"

// Vendor SDK error codes.
const (
	CodeSuccess       = 0
	CodeCommPort      = 1
	CodeWriteFail     = 2
	CodeReadFail      = 3
	CodeInvalidParam  = 4
	CodeNotCarriedOut = 5
	CodeLogEnd        = 6 // no more data; never a failure
	CodeMemory        = 7
	CodeMultiUser     = 8
)

var codeMessages = map[int]string{
	CodeSuccess:       "SUCCESS - operation completed",
	CodeCommPort:      "ERR_COMPORT_ERROR - communication port error (device unreachable or network issue)",
	CodeWriteFail:     "ERR_WRITE_FAIL - write failed (device busy or disconnected)",
	CodeReadFail:      "ERR_READ_FAIL - read failed (device busy or disconnected)",
	CodeInvalidParam:  "ERR_INVALID_PARAM - invalid parameter (check address, port or machine number)",
	CodeNotCarriedOut: "ERR_NON_CARRYOUT - operation not carried out",
	CodeLogEnd:        "ERR_LOG_END - end of log data",
	CodeMemory:        "ERR_MEMORY - device or SDK memory error",
	CodeMultiUser:     "ERR_MULTIUSER - another connection is active",
}

// ErrorMessage describes an SDK error code.
func ErrorMessage(code int) string {
	if m, ok := codeMessages[code]; ok {
		return m
	}
	return fmt.Sprintf("UNKNOWN_ERROR - unrecognized error code %d", code)
}

// Error is a failed SDK call together with the code the device reported.
type Error struct {
	Op   string
	Code int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: code %d: %s", e.Op, e.Code, ErrorMessage(e.Code))
}
