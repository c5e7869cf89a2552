// Command libttrack is the C ABI of the tracker, built with
//
//	go build -buildmode=c-shared -o libttrack.so ./cmd/libttrack
//
// Strings returned by the library are owned by the caller and must be
// released with ttrack_free.
package main

//#include <stdint.h>
//#include <stdlib.h>
import "C"

import (
	"os"
	"unsafe"

	"github.com/tinytrack/ttrack"
	"github.com/tinytrack/ttrack/internal/infra/logger"
)

func init() {
	// Logging is opt-in for embedders: TTRACK_LOG_DIR names the root that
	// receives .ttrack/logs/ttrack.log.
	if dir := os.Getenv("TTRACK_LOG_DIR"); dir != "" {
		_, _ = logger.Setup(logger.Config{
			Root:      dir,
			Debug:     os.Getenv("TTRACK_DEBUG") != "",
			Component: "libttrack",
		})
	}
}

//export ttrack_logger_new
func ttrack_logger_new(dir, experiment, run, source *C.char) C.uintptr_t {
	return C.uintptr_t(newLogger(C.GoString(dir), C.GoString(experiment), C.GoString(run), C.GoString(source)))
}

//export ttrack_log_param
func ttrack_log_param(h C.uintptr_t, key, value *C.char) C.int {
	return C.int(logParam(uintptr(h), C.GoString(key), C.GoString(value)))
}

//export ttrack_log_metric
func ttrack_log_metric(h C.uintptr_t, key *C.char, value C.double) C.int {
	return C.int(logMetric(uintptr(h), C.GoString(key), float64(value)))
}

//export ttrack_logger_end
func ttrack_logger_end(h C.uintptr_t, status *C.char) C.int {
	var s string
	if status != nil {
		s = C.GoString(status)
	}
	return C.int(endLogger(uintptr(h), s))
}

//export ttrack_logger_free
func ttrack_logger_free(h C.uintptr_t) {
	freeLogger(uintptr(h))
}

//export ttrack_get_experiments
func ttrack_get_experiments(dir *C.char) *C.char {
	out := experimentsJSON(C.GoString(dir))
	if out == "" {
		return nil
	}
	return C.CString(out)
}

//export ttrack_last_error
func ttrack_last_error() *C.char {
	msg := lastError()
	if msg == "" {
		return nil
	}
	return C.CString(msg)
}

//export ttrack_version
func ttrack_version() *C.char {
	return C.CString(ttrack.Version())
}

//export ttrack_free
func ttrack_free(p *C.char) {
	C.free(unsafe.Pointer(p))
}

func main() {}
