// Package grouper clusters fingerprint entries into duplicate groups.
//
// Exact groups partition entries by content fingerprint, an O(n) pass.
// Near-duplicate groups (videohash mode) avoid the quadratic all-pairs
// comparison with a coarse candidate index: every sampled frame of an
// entry is dropped into a low-discrimination bucket, and only entries
// sharing a bucket get the full windowed-distance comparison. Pairs under
// the threshold are merged with union-find. The index trades a small
// false-negative rate at bucket boundaries for scale; it makes no
// exhaustive-correctness claim.
package grouper

import (
	"slices"

	"vidupe/internal/fingerprint"
	"vidupe/internal/types"
)

// Options selects which group kinds to compute.
type Options struct {
	// Near enables perceptual near-duplicate grouping.
	Near bool
	// Threshold is the windowed-distance similarity threshold for Near.
	Threshold float64
}

// Groups computes duplicate groups from a store snapshot. The result is
// deterministic for a given snapshot: groups sorted by keeper path, files
// sorted by path.
func Groups(entries []*types.FingerprintEntry, opts Options) []types.DuplicateGroup {
	// Copy and sort so group membership never depends on input order.
	sorted := make([]*types.FingerprintEntry, len(entries))
	copy(sorted, entries)
	slices.SortFunc(sorted, func(a, b *types.FingerprintEntry) int {
		if a.Record.Path < b.Record.Path {
			return -1
		}
		if a.Record.Path > b.Record.Path {
			return 1
		}
		return 0
	})

	groups, exactMember := exactGroups(sorted)
	if opts.Near {
		groups = append(groups, nearGroups(sorted, exactMember, opts.Threshold)...)
	}

	slices.SortFunc(groups, func(a, b types.DuplicateGroup) int {
		if a.Keeper.Path < b.Keeper.Path {
			return -1
		}
		if a.Keeper.Path > b.Keeper.Path {
			return 1
		}
		return 0
	})
	return groups
}

// exactGroups partitions by content fingerprint. The returned set marks
// paths already claimed by an exact group, which near grouping excludes.
func exactGroups(entries []*types.FingerprintEntry) ([]types.DuplicateGroup, map[string]bool) {
	byDigest := make(map[types.ContentFingerprint][]types.FileRecord)
	for _, e := range entries {
		byDigest[e.Content] = append(byDigest[e.Content], e.Record)
	}

	member := make(map[string]bool)
	var groups []types.DuplicateGroup
	for digest, files := range byDigest {
		if len(files) < 2 {
			continue
		}
		for _, f := range files {
			member[f.Path] = true
		}
		groups = append(groups, types.DuplicateGroup{
			Files:   files,
			Keeper:  types.SelectKeeper(files),
			Exact:   true,
			Content: digest,
		})
	}
	return groups, member
}

// nearGroups merges perceptually similar entries. Entries without a
// perceptual fingerprint or already inside an exact group are skipped.
func nearGroups(entries []*types.FingerprintEntry, exclude map[string]bool, threshold float64) []types.DuplicateGroup {
	var candidates []*types.FingerprintEntry
	for _, e := range entries {
		if len(e.Frames) == 0 || exclude[e.Record.Path] {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) < 2 {
		return nil
	}

	// Coarse candidate index: bucket key -> candidate indices.
	buckets := make(map[uint64][]int)
	for i, e := range candidates {
		for _, key := range fingerprint.CoarseKeys(e.Frames) {
			buckets[key] = append(buckets[key], i)
		}
	}

	dsu := newUnionFind(len(candidates))
	compared := make(map[uint64]bool)
	for _, members := range buckets {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				i, j := members[x], members[y]
				pair := uint64(i)<<32 | uint64(j)
				if compared[pair] || dsu.find(i) == dsu.find(j) {
					continue
				}
				compared[pair] = true
				if fingerprint.Distance(candidates[i].Frames, candidates[j].Frames) < threshold {
					dsu.union(i, j)
				}
			}
		}
	}

	byRoot := make(map[int][]types.FileRecord)
	for i, e := range candidates {
		root := dsu.find(i)
		byRoot[root] = append(byRoot[root], e.Record)
	}

	var groups []types.DuplicateGroup
	for _, files := range byRoot {
		if len(files) < 2 {
			continue
		}
		groups = append(groups, types.DuplicateGroup{
			Files:  files,
			Keeper: types.SelectKeeper(files),
		})
	}
	return groups
}

// unionFind is a disjoint-set forest with path halving.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(x, y int) {
	rx, ry := u.find(x), u.find(y)
	if rx != ry {
		u.parent[rx] = ry
	}
}
