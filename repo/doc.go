// Package repo implements signed, content-addressed repositories of
// records: a Merkle Search Tree mapping record paths to record CIDs,
// wrapped by a chain of signed commit objects, serialized as CAR
// files.
//
// The main entrypoints are [NewRepo], which creates an empty
// repository; [Repo.ApplyWrites], which applies a transactional batch of
// record mutations and produces a new signed commit; and
// [LoadRepoFromCAR] / [VerifyCommitDiff], which consume snapshot and
// diff CAR files produced by other implementations.
package repo
