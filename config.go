package translate

import (
	"time"

	"github.com/nexelab/translate/loop"
)

// Config holds configuration for the Translator.
type Config struct {
	// Root is the sandboxed filesystem directory the translator owns.
	Root string

	// TempDir is the scratch directory for pipeline files. Published
	// executables are renamed in place here, so cache hits can reopen
	// them by name.
	TempDir string

	// CodeGenName is the manifest name of the code-generator binary.
	CodeGenName string

	// LinkerName is the manifest name of the linker binary.
	LinkerName string

	// QueueSize is the completion loop queue capacity.
	QueueSize int

	// StageTimeout bounds each worker exchange when non-zero. Zero means
	// exchanges run until they finish or the worker dies.
	StageTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Root:        "translate",
		TempDir:     "translate/tmp",
		CodeGenName: "llc",
		LinkerName:  "ld",
		QueueSize:   loop.DefaultQueueSize,
	}
}
