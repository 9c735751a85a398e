// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// plyCodec implements a minimal ASCII PLY (Polygon File Format) writer
// and reader, covering exactly the "x y z uchar red green blue"
// vertex layout this pipeline needs. There is no Go equivalent of the
// original's ply-rs dependency in the example corpus, and the format
// is small and fixed enough that hand-rolling it is the pragmatic
// choice (see DESIGN.md).
type plyCodec struct{}

func (plyCodec) Kind() Kind { return Ply }

func (plyCodec) Encode(pc pointcloud.PointCloudData) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ply\n")
	fmt.Fprintf(&buf, "format ascii 1.0\n")
	fmt.Fprintf(&buf, "element vertex %d\n", len(pc.Points))
	fmt.Fprintf(&buf, "property float x\n")
	fmt.Fprintf(&buf, "property float y\n")
	fmt.Fprintf(&buf, "property float z\n")
	fmt.Fprintf(&buf, "property uchar red\n")
	fmt.Fprintf(&buf, "property uchar green\n")
	fmt.Fprintf(&buf, "property uchar blue\n")
	fmt.Fprintf(&buf, "end_header\n")
	for _, p := range pc.Points {
		fmt.Fprintf(&buf, "%g %g %g %d %d %d\n", p.X, p.Y, p.Z, p.R, p.G, p.B)
	}
	return buf.Bytes(), nil
}

func (plyCodec) Decode(payload []byte) (pointcloud.PointCloudData, error) {
	sc := bufio.NewScanner(bytes.NewReader(payload))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	nVertex := -1
	inHeader := true
	for inHeader && sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "ply", strings.HasPrefix(line, "format "), strings.HasPrefix(line, "comment "),
			strings.HasPrefix(line, "property "):
			continue
		case strings.HasPrefix(line, "element vertex "):
			n, err := strconv.Atoi(strings.TrimPrefix(line, "element vertex "))
			if err != nil {
				return pointcloud.PointCloudData{}, fmt.Errorf("ply: bad vertex count: %w", err)
			}
			nVertex = n
		case line == "end_header":
			inHeader = false
		}
	}
	if nVertex < 0 {
		return pointcloud.PointCloudData{}, fmt.Errorf("ply: missing element vertex header")
	}

	points := make([]pointcloud.Point3D, 0, nVertex)
	for i := 0; i < nVertex && sc.Scan(); i++ {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			return pointcloud.PointCloudData{}, fmt.Errorf("ply: short vertex line %d", i)
		}
		x, _ := strconv.ParseFloat(fields[0], 32)
		y, _ := strconv.ParseFloat(fields[1], 32)
		z, _ := strconv.ParseFloat(fields[2], 32)
		r, _ := strconv.Atoi(fields[3])
		g, _ := strconv.Atoi(fields[4])
		b, _ := strconv.Atoi(fields[5])
		points = append(points, pointcloud.Point3D{
			X: float32(x), Y: float32(y), Z: float32(z),
			R: uint8(r), G: uint8(g), B: uint8(b),
		})
	}
	return pointcloud.PointCloudData{Points: points}, nil
}
