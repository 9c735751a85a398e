// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package pointcloud

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameTaskDataEqualIgnoresSendTime(t *testing.T) {
	a := FrameTaskData{SendTimeUS: 1, PresentationTimeUS: 100, Data: []byte("abc")}
	b := FrameTaskData{SendTimeUS: 2, PresentationTimeUS: 100, Data: []byte("abc")}
	require.True(t, a.Equal(b))

	c := FrameTaskData{SendTimeUS: 1, PresentationTimeUS: 101, Data: []byte("abc")}
	require.False(t, a.Equal(c))
}

func TestFrameTaskDataLess(t *testing.T) {
	a := FrameTaskData{PresentationTimeUS: 100, SendTimeUS: 5}
	b := FrameTaskData{PresentationTimeUS: 100, SendTimeUS: 6}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))

	c := FrameTaskData{PresentationTimeUS: 99, SendTimeUS: 100}
	require.True(t, c.Less(a))
}

func TestStreamID(t *testing.T) {
	require.Equal(t, "client_7_2", StreamID(7, 2))
}
