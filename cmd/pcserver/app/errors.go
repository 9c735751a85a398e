// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import "errors"

var (
	errNotFound        = errors.New("not found")
	errEgressNotReady  = errors.New("egress not initialized")
	errInvalidSegment  = errors.New("invalid segment name")
	errBufferUnmarshal = errors.New("could not parse stream settings request")
)
