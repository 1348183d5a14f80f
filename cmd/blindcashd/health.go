// health.go - Health checks for the authority, ledger and entropy source
package main

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"blindcash/internal/blindsig"
	"blindcash/internal/ecash"
	"blindcash/internal/random"
	"blindcash/internal/transactions/deposit"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a specific component
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// SystemHealth represents the overall system health
type SystemHealth struct {
	OverallStatus HealthStatus      `json:"overall_status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
}

// HealthChecker runs the registered component checks on demand.
type HealthChecker struct {
	mu        sync.Mutex
	checkers  map[string]func() error
	startTime time.Time
	version   string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checkers:  make(map[string]func() error),
		startTime: time.Now(),
		version:   version,
	}
}

// RegisterComponent registers a health check for a component
func (hc *HealthChecker) RegisterComponent(name string, checker func() error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkers[name] = checker
}

// CheckHealth runs every check; components come back sorted by name.
func (hc *HealthChecker) CheckHealth() *SystemHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	names := make([]string, 0, len(hc.checkers))
	for name := range hc.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := Healthy
	components := make([]ComponentHealth, 0, len(names))
	for _, name := range names {
		start := time.Now()
		err := hc.checkers[name]()
		c := ComponentHealth{
			Name:      name,
			Status:    Healthy,
			Message:   "OK",
			LastCheck: time.Now(),
			Latency:   time.Since(start),
		}
		if err != nil {
			c.Status = Unhealthy
			c.Message = err.Error()
			overall = Unhealthy
		}
		components = append(components, c)
	}

	return &SystemHealth{
		OverallStatus: overall,
		Timestamp:     time.Now(),
		Components:    components,
		Uptime:        time.Since(hc.startTime),
		Version:       hc.version,
	}
}

// HealthCheckResponse represents the response format for health reports
type HealthCheckResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    *SystemHealth `json:"data,omitempty"`
}

// CreateHealthResponse creates a standardized health check response
func CreateHealthResponse(health *SystemHealth) *HealthCheckResponse {
	if health.OverallStatus == Unhealthy {
		return &HealthCheckResponse{Status: "error", Message: "System is unhealthy", Data: health}
	}
	return &HealthCheckResponse{Status: "success", Message: "System is healthy", Data: health}
}

// authorityCheck signs and verifies a throwaway message through the blind path.
func authorityCheck(a *ecash.Authority) func() error {
	return func() error {
		pub := a.PublicKey()
		h := blindsig.HashMessage("health-check")
		b, err := blindsig.Blind(blindsig.BlindRequest{MessageHash: h, N: pub.N, E: pub.E})
		if err != nil {
			return errors.Wrap(err, "blind")
		}
		s, err := a.SignBlinded(b.Blinded)
		if err != nil {
			return errors.Wrap(err, "sign")
		}
		sig, err := blindsig.Unblind(blindsig.UnblindRequest{Signed: s, N: pub.N, Factor: b.Factor})
		if err != nil {
			return errors.Wrap(err, "unblind")
		}
		if !blindsig.Verify(blindsig.VerifyRequest{Unblinded: sig, MessageHash: h, N: pub.N, E: pub.E}) {
			return errors.New("health-check signature does not verify")
		}
		return nil
	}
}

// ledgerCheck confirms every deposited guid still verifies under the bank key.
func ledgerCheck(l *deposit.Ledger, pub *blindsig.PublicKey) func() error {
	return func() error {
		for _, guid := range l.GUIDs() {
			deps := l.Deposits(guid)
			if len(deps) == 0 {
				return errors.Errorf("ledger lists %s without deposits", guid)
			}
			if !deps[0].Coin.VerifySignature(pub) {
				return errors.Errorf("deposited coin %s no longer verifies", guid)
			}
		}
		return nil
	}
}

// entropyCheck makes sure the random source still produces output.
func entropyCheck(src *random.Source) func() error {
	return func() error {
		b, err := src.Bytes(32)
		if err != nil {
			return err
		}
		if new(big.Int).SetBytes(b).Sign() == 0 {
			return errors.New("entropy source returned zeros")
		}
		return nil
	}
}
