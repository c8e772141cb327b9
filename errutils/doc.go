package errutils

// Package errutils provides a set of utilities for working with errors in Go.

// Example:
//
// The following example demonstrates how to use the `FmtError` function to add context to an error:
//
//     package main
//
//     import (
//         "fmt"
//         "oss.nandlabs.io/cirrusd/errutils"
//     )
//
//     func main() {
//         err := someFunction()
//         if err != nil {
//             wrappedErr := errutils.FmtError("failed to perform operation: %v", err)
//             fmt.Println(wrappedErr)
//         }
//     }
//
// In the above example, the `FmtError` function is used to add context to the original error returned by `someFunction()`.
// The resulting error is then printed using `fmt.Println()`.
