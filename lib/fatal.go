/*package lib glues the winnow subpackages together: it loads run
configurations, checks them, and drives a resampling run end to end. The
heavy lifting is done by lib/'s subpackages.*/
package lib

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
)

// External reports an error to stderr and kills the program. It should be
// used when the error is something a user could reasonably be expected to
// fix through changes in configuration, data, or environment. It has the
// same signature as the standard fmt.*printf() functions.
func External(format string, a ...interface{}) {
	log.Printf("Winnow exited early with the following error:\n" + format, a...)
	os.Exit(1)
}

// Internal reports an error to stderr along with a stack trace and kills the
// program. It should be used when the error requires a code dive to fix. It
// has the same signature as the standard fmt.*printf() functions.
func Internal(format string, a ...interface{}) {
	log.Println("Winnow exited early with the following error:")
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n\n")
	debug.PrintStack()
	os.Exit(1)
}
