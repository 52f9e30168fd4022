// Package observability provides OpenTelemetry tracing and RED metrics for
// the gateway's decision pipeline.
//
// # Tracing
//
// Initialize the provider at application startup:
//
//	p, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "auzguard",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1, // 10% sampling in production
//		Enabled:      true,
//	})
//	defer p.Shutdown(ctx)
//
// Track an operation from start to finish:
//
//	ctx, done := p.TrackOperation(ctx, "policy.evaluate", observability.PolicyEvalOperation(...)...)
//	defer done(err)
package observability
