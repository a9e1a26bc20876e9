// Package bamprovider provides utilities for scanning a BAM/SAM file in
// parallel.
//
// The Provider is an interface for reading a BAM or SAM file shard by shard.
// A provider backed by an index can seek to each shard; one without an index
// can only be read from the beginning.
package bamprovider
