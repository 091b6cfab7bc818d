// Package garbage filters low-value candidate chunks before
// embedding. Filtering is staged: deterministic rejection rules, a
// meaningfulness score for summary artifacts, and an optional
// generation-service validation. Stages only ever reject; a candidate
// rejected at one stage is never reconsidered by a later one. Every
// rejection is logged.
package garbage
