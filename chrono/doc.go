// Package chrono provides schedule primitives: cron expressions, fixed
// intervals, and one-shot delays, each exposing a Next(from) computation.
package chrono
