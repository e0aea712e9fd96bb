package storage

import (
	"context"
	"sync"
	"time"
)

// HealthManager keeps the latest health status of every sink in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]HealthData
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]HealthData),
	}
}

// UpdateHealth updates the health status for a sink
func (hm *HealthManager) UpdateHealth(name string, health *HealthData) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[name] = *health
}

// GetHealth retrieves the health status for a specific sink
func (hm *HealthManager) GetHealth(name string) (HealthData, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	health, exists := hm.health[name]
	return health, exists
}

// GetAllHealth returns a copy of every known status
func (hm *HealthManager) GetAllHealth() map[string]HealthData {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]HealthData, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy checks that a sink reported healthy within maxAge
func (hm *HealthManager) IsHealthy(name string, maxAge time.Duration) bool {
	health, exists := hm.GetHealth(name)
	if !exists {
		return false
	}
	if time.Since(health.LastCheck) > maxAge {
		return false
	}
	return health.Status == "healthy"
}

// Check runs checker once and records the result under name
func (hm *HealthManager) Check(ctx context.Context, name string, checker HealthChecker) HealthData {
	health := checker.CheckHealth(ctx)
	hm.UpdateHealth(name, health)
	return *health
}
