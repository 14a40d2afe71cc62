package backend

import "fmt"

// Status is a numeric result code returned by a backend. The values follow
// the Hyperscan hs_error_t codes so the native backend can pass them through
// unchanged.
type Status int

const (
	StatusSuccess        Status = 0
	StatusInvalid        Status = -1
	StatusNoMem          Status = -2
	StatusScanTerminated Status = -3
	StatusCompilerError  Status = -4
	StatusDBVersion      Status = -5
	StatusDBPlatform     Status = -6
	StatusDBMode         Status = -7
	StatusBadAlign       Status = -8
	StatusBadAlloc       Status = -9
	StatusScratchInUse   Status = -10
	StatusArchError      Status = -11
)

var statusNames = map[Status]string{
	StatusSuccess:        "success",
	StatusInvalid:        "invalid parameter",
	StatusNoMem:          "memory allocation failed",
	StatusScanTerminated: "scan terminated by callback",
	StatusCompilerError:  "pattern compilation failed",
	StatusDBVersion:      "database built for a different version",
	StatusDBPlatform:     "database built for a different platform",
	StatusDBMode:         "database built for a different mode",
	StatusBadAlign:       "bad alignment",
	StatusBadAlloc:       "allocator returned misaligned memory",
	StatusScratchInUse:   "scratch region already in use",
	StatusArchError:      "unsupported CPU architecture",
}

func (s Status) Error() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown status %d", int(s))
}

// Code returns the numeric status code.
func (s Status) Code() int {
	return int(s)
}
