package core

import (
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
)

const (
	// CollisionRadius is the distance in surface units under which two raw
	// marker positions are considered overlapping.
	CollisionRadius = 3.0
	// MinJitter is the smallest jitter bound regardless of surface width.
	MinJitter = 4.0
	// JitterFraction of the surface width bounds the jitter offset.
	JitterFraction = 0.01
)

// JitterItem is a marker's raw (unjittered) surface position.
type JitterItem struct {
	ID  string
	Pos Point
}

// JitterBound returns the maximum offset Jitter may apply on a surface of
// the given width.
func JitterBound(width float64) float64 {
	return math.Max(MinJitter, width*JitterFraction)
}

// Jitter spreads overlapping markers apart. Items closer than
// CollisionRadius to another item (transitively) form a group; members of a
// group are fanned out around their raw position at evenly spaced angles.
// Offsets are derived from ids only, so the same id in the same collision
// group always receives the same offset. Items with no collision get a zero
// offset. The result is keyed by id.
func Jitter(items []JitterItem, width float64) map[string]Point {
	offsets := make(map[string]Point, len(items))
	if len(items) == 0 {
		return offsets
	}

	bound := JitterBound(width)
	for _, group := range collisionGroups(items) {
		if len(group) == 1 {
			offsets[group[0]] = Point{}
			continue
		}
		sort.Strings(group)
		base := unitHash(group[0], 0) * 2 * math.Pi
		n := float64(len(group))
		for i, id := range group {
			angle := base + 2*math.Pi*float64(i)/n
			mag := bound * (0.5 + 0.5*unitHash(id, 20))
			offsets[id] = Point{X: mag * math.Cos(angle), Y: mag * math.Sin(angle)}
		}
	}
	return offsets
}

// unitHash maps id to [0,1) using 16 bits of its hash starting at shift.
func unitHash(id string, shift uint) float64 {
	h := xxhash.Sum64String(id)
	return float64((h>>shift)&0xffff) / 65536.0
}

// collisionGroups buckets items into a grid of CollisionRadius cells and
// unions neighbours within range.
func collisionGroups(items []JitterItem) [][]string {
	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	type cell struct{ x, y int }
	grid := make(map[cell][]int, len(items))
	cellOf := func(p Point) cell {
		return cell{int(math.Floor(p.X / CollisionRadius)), int(math.Floor(p.Y / CollisionRadius))}
	}
	for i, it := range items {
		c := cellOf(it.Pos)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, j := range grid[cell{c.x + dx, c.y + dy}] {
					if it.Pos.DistanceTo(items[j].Pos) < CollisionRadius {
						parent[find(i)] = find(j)
					}
				}
			}
		}
		grid[c] = append(grid[c], i)
	}

	byRoot := make(map[int][]string)
	var roots []int
	for i, it := range items {
		r := find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], it.ID)
	}
	groups := make([][]string, 0, len(roots))
	for _, r := range roots {
		groups = append(groups, byRoot[r])
	}
	return groups
}
