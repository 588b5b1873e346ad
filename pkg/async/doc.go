// Package async provides panic-safe helpers for detached background work,
// used for best-effort tasks like publishing run results to the counter
// cache.
package async
