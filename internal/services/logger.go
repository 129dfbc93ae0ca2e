package services

// This file previously contained the deprecated Logger interface and related functions.
// All services now use slog directly via dependency injection.
//
// For logging, use:
// - infrastructure.GetLogger() for basic logging
// - logger.With(slog.String("component", name)) for component-scoped loggers
// - Direct *slog.Logger injection in service constructors
