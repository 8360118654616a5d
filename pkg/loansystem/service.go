package loansystem

import (
	"strings"

	"github.com/meridian-lending/recon-cli/internal/resilience"
)

// Objects names the platform custom objects the pipeline touches. The
// defaults match an nCino-style org; overrides come from config.
type Objects struct {
	Loan  string
	Fee   string
	Order string
}

// DefaultObjects returns the standard object names.
func DefaultObjects() Objects {
	return Objects{
		Loan:  "LLC_BI__Loan__c",
		Fee:   "LLC_BI__Fee__c",
		Order: "Disclosure_Request__c",
	}
}

// Service exposes the domain operations the pipeline needs. Every call
// goes through a circuit breaker so a struggling org stops absorbing
// retries across stages.
type Service struct {
	client  Client
	objects Objects
	breaker *resilience.CircuitBreaker
}

// NewService creates a Service. A nil breaker gets default settings.
func NewService(client Client, objects Objects, breaker *resilience.CircuitBreaker) *Service {
	if objects.Loan == "" {
		objects = DefaultObjects()
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitConfig{})
	}
	return &Service{client: client, objects: objects, breaker: breaker}
}

// escapeSoql escapes single quotes in SOQL string literals to prevent
// injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
