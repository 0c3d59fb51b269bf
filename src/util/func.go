package util

import (
	"runtime"
)

// GetFunctionName returns the fully qualified name of the calling function,
// e.g. "chatify/src/services/chat.(*Service).Send".
func GetFunctionName() string {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return "unknown function"
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown function"
	}

	return fn.Name()
}
