// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coverage computes seq2c-style per-region read depth.
//
// For every region of an interval.Panel, it reports the total number of
// aligned bases falling inside the region (depth), the number of records
// overlapping it, and the mean depth.  Only bases aligned by M, = and X CIGAR
// operations count.  Regions of the same gene on the same chromosome are
// additionally summarized by a Whole-Gene row.
//
// Run splits the genome into shards holding roughly equal numbers of region
// starts and gives each shard a private Accumulator.  Every record is owned
// by exactly one shard (the one containing its leftmost position), so the
// merged sums are exact and do not depend on the degree of parallelism.
package coverage
