// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package aggregator

import (
	"fmt"
	"math/rand"

	"github.com/Dash-Industry-Forum/pointcloud-live/pkg/pointcloud"
)

// ExactRandomSampling selects exactly targetCount elements from data
// using a single-pass reservoir-inspired scan (spec §4.4): uniformly
// distributed, and always exactly targetCount elements unlike a
// Bernoulli-trial random_sampling.
func ExactRandomSampling(data []pointcloud.Point3D, targetCount int) []pointcloud.Point3D {
	if targetCount > len(data) {
		panic(fmt.Sprintf("aggregator: target count %d exceeds input length %d", targetCount, len(data)))
	}
	if targetCount == 0 {
		return nil
	}
	out := make([]pointcloud.Point3D, 0, targetCount)
	remaining := targetCount
	dataLen := len(data)
	for i, p := range data {
		u := rand.Float64()
		if float64(dataLen)*u <= float64(remaining) {
			out = append(out, p)
			remaining--
			if remaining == 0 {
				break
			}
		}
		dataLen--
		_ = i
	}
	return out
}

// PartitionByPercentages shuffles data once and carves it into
// disjoint sub-clouds of size floor(pct*n/100) in the given order
// (spec §4.4). pcts must each be <=100 and sum to <=100.
func PartitionByPercentages(data []pointcloud.Point3D, pcts []uint8) ([][]pointcloud.Point3D, error) {
	var sum int
	for _, p := range pcts {
		if p > 100 {
			return nil, fmt.Errorf("aggregator: percentage %d exceeds 100", p)
		}
		sum += int(p)
	}
	if sum > 100 {
		return nil, fmt.Errorf("aggregator: percentages sum to %d, exceeds 100", sum)
	}

	n := len(data)
	if n == 0 {
		return nil, nil
	}

	indices := rand.Perm(n)

	buckets := make([][]pointcloud.Point3D, 0, len(pcts))
	offset := 0
	for _, pct := range pcts {
		take := int(pct) * n / 100
		end := offset + take
		bucket := make([]pointcloud.Point3D, 0, take)
		for _, idx := range indices[offset:end] {
			bucket = append(bucket, data[idx])
		}
		buckets = append(buckets, bucket)
		offset = end
	}
	return buckets, nil
}
