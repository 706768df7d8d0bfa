// -----------------------------------------------------------------------
// Crash Protection - Fatal error handling and crash file generation
// -----------------------------------------------------------------------

package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// crashDir is where crash reports land. Set once by InstallCrashHandler;
// the default covers panics that fire before initialization finishes.
var crashDir = "./logs"

// InstallCrashHandler prepares the crash report directory. Call it first
// thing in main, before config loading or logger setup can panic, and
// pair it with a deferred RecoverWithCrashFile.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		crashDir = logDir
	}
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot create crash directory %s: %v\n", crashDir, err)
	}
}

// RecoverWithCrashFile recovers a panic, writes the crash report and
// exits non-zero. Intended as `defer common.RecoverWithCrashFile()` at
// the top of main.
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, GetStackTrace())
		os.Exit(1)
	}
}

// WriteCrashFile dumps a crash report for the given panic and returns
// the report path. The report is also echoed to stderr when the file
// cannot be written, so the evidence survives a read-only disk.
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	path := filepath.Join(crashDir, fmt.Sprintf("scrutor-crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))

	var buf bytes.Buffer
	section := func(name string) { fmt.Fprintf(&buf, "=== %s ===\n", name) }

	section("SCRUTOR CRASH REPORT")
	fmt.Fprintf(&buf, "Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n\n", GetFullVersion())

	section("PANIC")
	fmt.Fprintf(&buf, "%v\n\n", panicVal)

	section("PANICKING GOROUTINE")
	buf.WriteString(stackTrace)
	buf.WriteString("\n")

	section("ALL GOROUTINES")
	buf.WriteString(GetAllGoroutineStacks())
	buf.WriteString("\n")

	section("RUNTIME")
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&buf, "Goroutines: %d (spawned via SafeGo: %d)\n", runtime.NumGoroutine(), GetGoroutineCount())
	fmt.Fprintf(&buf, "CPUs: %d, %s/%s\n", runtime.NumCPU(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&buf, "Heap: %d MB allocated, %d MB from OS, %d GC cycles\n\n",
		mem.Alloc/1024/1024, mem.Sys/1024/1024, mem.NumGC)

	section("END CRASH REPORT")

	// Unbuffered write; the process is about to die and must not lose
	// the report to a pending flush.
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot write crash file: %v\n", err)
		os.Stderr.Write(buf.Bytes())
		return ""
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\n", path)
	fmt.Fprintf(os.Stderr, "Panic: %v\n", panicVal)
	return path
}

// GetAllGoroutineStacks captures stack traces for every goroutine,
// growing the buffer until the dump fits (capped at 64MB).
func GetAllGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 64*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// GetStackTrace returns the current goroutine's stack trace.
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
