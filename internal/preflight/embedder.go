package preflight

import (
	"context"
	"fmt"
	"time"
)

// embedderProbeTimeout bounds the reachability probe so a hung
// embedding service cannot stall startup.
const embedderProbeTimeout = 5 * time.Second

// CheckEmbedder probes the configured embedding provider. The check is
// non-critical: with the service down, indexing can use static
// embeddings and search degrades to lexical-only.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedding_service",
		Required: false,
	}

	if c.probe == nil {
		result.Status = StatusWarn
		result.Message = "no embedding provider configured"
		return result
	}

	probeCtx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()

	if !c.probe(probeCtx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("model %s unreachable (search will degrade to lexical-only)", c.modelName)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("model %s reachable", c.modelName)
	return result
}
