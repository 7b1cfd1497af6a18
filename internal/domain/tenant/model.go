package tenant

import (
	"errors"
	"time"
)

// Modules a clinic can switch on.
const (
	ModuleAgenda     = "agenda"
	ModulePatients   = "patients"
	ModuleAutomation = "automation"
)

var KnownModules = []string{ModuleAgenda, ModulePatients, ModuleAutomation}

var (
	ErrNotFound      = errors.New("tenant not found")
	ErrExists        = errors.New("tenant already exists")
	ErrInvalidTenant = errors.New("invalid tenant")
	ErrUnknownModule = errors.New("unknown module")
)

type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type Module struct {
	Key     string `json:"key" db:"module"`
	Enabled bool   `json:"enabled" db:"enabled"`
}

func isKnownModule(key string) bool {
	for _, m := range KnownModules {
		if m == key {
			return true
		}
	}
	return false
}
