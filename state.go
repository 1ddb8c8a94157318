package translate

// State is one step of the translation pipeline. A job walks the states
// in order on the completion loop; CacheLookup may shortcut straight to
// Finished, and any failure drops into teardown ending at Failed.
type State int

const (
	StateLoadTranslatorBinaries State = iota
	StateOpenLocalFileSystem
	StateEnsureTempDirectory
	StateCacheLookup
	StateFetchBitcode
	StateOpenObjectForWrite
	StateOpenObjectForRead
	StateOpenNexeForWrite
	StatePrepareStreaming
	StateRunTranslation
	StateTranslationComplete
	StateCloseObjectFile
	StateDeleteObjectFile
	StateCloseNexeFile
	StateRenameNexeFile
	StateOpenNexeForFinalRead
	StateFinished
	StateFailed
)

var stateNames = [...]string{
	StateLoadTranslatorBinaries: "load_translator_binaries",
	StateOpenLocalFileSystem:    "open_local_file_system",
	StateEnsureTempDirectory:    "ensure_temp_directory",
	StateCacheLookup:            "cache_lookup",
	StateFetchBitcode:           "fetch_bitcode",
	StateOpenObjectForWrite:     "open_object_for_write",
	StateOpenObjectForRead:      "open_object_for_read",
	StateOpenNexeForWrite:       "open_nexe_for_write",
	StatePrepareStreaming:       "prepare_streaming",
	StateRunTranslation:         "run_translation",
	StateTranslationComplete:    "translation_complete",
	StateCloseObjectFile:        "close_object_file",
	StateDeleteObjectFile:       "delete_object_file",
	StateCloseNexeFile:          "close_nexe_file",
	StateRenameNexeFile:         "rename_nexe_file",
	StateOpenNexeForFinalRead:   "open_nexe_for_final_read",
	StateFinished:               "finished",
	StateFailed:                 "failed",
}

// String returns the snake_case state name used in logs and stage
// events.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the state ends the pipeline.
func (s State) Terminal() bool { return s == StateFinished || s == StateFailed }
