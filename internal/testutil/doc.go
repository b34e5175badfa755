// Package testutil holds deterministic helpers shared by the harness and
// package tests: sequential request ids and in-memory log capture.
package testutil
