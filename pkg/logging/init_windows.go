// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

//go:build windows
// +build windows

package logging

// normalizeLogFormat downgrades LogPretty to LogText on Windows, where
// the pretty handler's ANSI color escapes render as garbage in cmd.exe
// and older PowerShell consoles lacking VT100 support.
func normalizeLogFormat(logFormat string) string {
	if logFormat == LogPretty {
		return LogText
	}
	return logFormat
}
