package safego

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/datazip-inc/pipes/logger"
)

// Recovery logs a recovered panic with its stack; exit terminates the process.
func Recovery(exit bool) {
	r := recover()
	if r == nil {
		return
	}

	logger.Errorf("panic recovered: %v\n%s", r, debug.Stack())
	if exit {
		fmt.Fprintln(os.Stderr, "pipes crashed, see logs for stack")
		os.Exit(1)
	}
}

// Call runs f and returns a panic inside it as an error.
func Call(name string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic recovered in %s: %v\n%s", name, r, debug.Stack())
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	return f()
}
