package httpapi

import "studyhub/internal/usage"

// planFromMetadata resolves the user's plan from identity metadata, falling
// back to free.
func planFromMetadata(metadata map[string]any) usage.Plan {
	name, _ := metadata["plan"].(string)
	return usage.PlanFor(name)
}
