// Package services implements the business logic layer of the scaletrend
// server. It provides a clean separation between HTTP handlers and the
// analysis engine, ensuring that business rules are centralized and testable.
//
// # Architecture
//
// Services follow these architectural principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection for loose coupling
//	4. Domain-focused methods that encapsulate business rules
//
// # Service Layer Responsibilities
//
// The service layer is responsible for:
//
//	- Running the ingest-to-summary path for uploads
//	- Retaining analyzed state for window re-filtering
//	- Session lifetime (TTL expiry, capacity limits)
//	- Cross-cutting concerns (logging, metrics)
//	- Error handling and transformation
//
// # Common Service Pattern
//
// Services typically follow this structure:
//
//	type ServiceName struct {
//	    cfg    config.SectionConfig
//	    logger *slog.Logger
//	}
//
//	func NewServiceName(cfg config.SectionConfig, logger *slog.Logger) *ServiceName {
//	    return &ServiceName{
//	        cfg:    cfg,
//	        logger: logger,
//	    }
//	}
//
//	func (s *ServiceName) BusinessOperation(ctx context.Context, input Input) (*Output, error) {
//	    result, err := s.engine.Operation(ctx, input)
//	    if err != nil {
//	        s.logger.ErrorContext(ctx, "operation failed",
//	            "error", err,
//	        )
//	        return nil, fmt.Errorf("operation failed: %w", err)
//	    }
//
//	    return result, nil
//	}
//
// # Available Services
//
// The package provides these core services:
//
//	- AnalysisService: Runs uploads through the trend engine and owns the
//	  in-memory session store that window queries re-filter against
//	- HealthService: Provides system health checks and version information
//
// # Error Handling
//
// Services return domain-specific errors that handlers can transform:
//
//	- Sentinel errors for missing or expired sessions
//	- Ingest errors for undecodable or unusable datasets
//	- Capacity errors when the session store is full
//
// # Testing
//
// Services are tested against the real engine with in-memory datasets; the
// WebSocket hub is the only mocked dependency:
//
//	svc := NewAnalysisService(cfg, logger)
//	defer svc.Close()
//
//	result, err := svc.Analyze(ctx, strings.NewReader(csv), "weights.csv", opts)
package services
