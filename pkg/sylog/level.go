// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sylog

// messageLevel indicates the level of a log message, higher is more verbose.
type messageLevel int

const (
	FatalLevel   messageLevel = iota - 4 // -4
	ErrorLevel                           // -3
	WarnLevel                            // -2
	LogLevel                             // -1
	InfoLevel                            // 0
	VerboseLevel                         // 1
	Verbose2Level
	DebugLevel
)

func (l messageLevel) String() string {
	switch l {
	case FatalLevel:
		return "FATAL"
	case ErrorLevel:
		return "ERROR"
	case WarnLevel:
		return "WARNING"
	case LogLevel:
		return "LOG"
	case InfoLevel:
		return "INFO"
	case VerboseLevel, Verbose2Level:
		return "VERBOSE"
	case DebugLevel:
		return "DEBUG"
	default:
		return "LOG"
	}
}
