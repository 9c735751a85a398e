// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package egress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/codec"
	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// File is the debug snapshot egress (component C6): every emitted
// frame is written to
// dist/exports/{stream_id}/{send_time_us}.{ext} (spec §6 "Persisted
// state layout"), where ext is the lowercase codec fourcc prefix.
type File struct {
	*Common
	streamID string
	baseDir  string
	log      *slog.Logger
}

// NewFile constructs a File egress that snapshots streamID's frames
// under baseDir (normally "dist/exports").
func NewFile(common *Common, streamID, baseDir string, log *slog.Logger) *File {
	return &File{Common: common, streamID: streamID, baseDir: baseDir, log: log}
}

func (f *File) EncodingFormat() codec.Kind     { return f.Cfg.encodingFormat() }
func (f *File) MaxNumberOfPoints() uint64      { return f.Cfg.MaxPoints.Load() }
func (f *File) SetFPS(fps uint32)              { f.Cfg.FPS.Store(fps) }
func (f *File) SetEncodingFormat(k codec.Kind) { f.Cfg.EncodingFormat.Store(k) }
func (f *File) SetMaxNumberOfPoints(n uint64)  { f.Cfg.MaxPoints.Store(n) }

func (f *File) PushPointCloud(pc pointcloud.PointCloudData, streamID string) {
	f.encodeAndPush(pc)
}

func (f *File) PushEncodedFrameBypass(rawData []byte, streamID string, creationTimeUS, presentationTimeUS uint64, ringBufferBypass bool, clientID *uint64, tileIndex *uint32) {
	frame := pointcloud.FrameTaskData{
		SendTimeUS:         uint64(time.Now().UnixMicro()),
		PresentationTimeUS: presentationTimeUS,
		Data:               rawData,
	}
	if ringBufferBypass {
		frame.SendTimeUS = uint64(time.Now().UnixMicro())
		f.EmitFrameData(frame)
		return
	}
	f.PushEncodedFrame(frame)
}

func (f *File) EnsureThreadsStarted(ctx context.Context) {
	f.Common.EnsureThreadsStarted(ctx, f.EmitFrameData)
}

// EmitFrameData writes frame.Data to disk under its codec-derived
// extension.
func (f *File) EmitFrameData(frame pointcloud.FrameTaskData) {
	ext := "bin"
	if kind, err := codec.KindFromTag(frame.Data); err == nil {
		ext = fourccExt(kind)
	}
	dir := filepath.Join(f.baseDir, f.streamID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		f.log.Warn("file egress mkdir failed", "dir", dir, "err", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.%s", frame.SendTimeUS, ext))
	if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
		f.log.Warn("file egress write failed", "path", path, "err", err)
	}
}

func fourccExt(kind codec.Kind) string {
	tag := kind.Tag()
	return string(tag[:])
}
