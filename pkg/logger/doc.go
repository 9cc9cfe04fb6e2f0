// Package logger provides a small factory for configured slog.Logger instances
// together with attribute helpers shared by the storefront client packages.
//
// The factory supports text and JSON output, static attributes and the usual
// level knobs. Development and production presets bundle sensible defaults:
//
//	log := logger.New(logger.WithDevelopment("storefront"))
//	log.Info("cart reloaded", slog.Int("items", 3))
//
// Attribute helpers keep log keys consistent across packages, e.g.
// logger.Error(err), logger.RequestID(id), logger.Status(401).
package logger
