// Package logging wraps zap with context-aware methods for the tiermem
// daemon.
//
// A Logger adds correlation fields pulled from the context to every entry:
//
//	trace_id, span_id   from the active OpenTelemetry span
//	agent_id            from WithAgentID
//	request_id          from WithRequestID
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithAgentID(ctx, "Old Tom")
//	logger.Info(ctx, "memory added", zap.String("layer", "active"))
//
// Keys listed in the redaction config are masked by the encoder, and string
// values matching a redaction pattern are replaced regardless of key.
//
// Sampling keeps the first N entries per tick for each message and then one
// in every M. Error and above are never sampled.
//
// Core packages take a plain *zap.Logger. Use Underlying to hand one over.
package logging
