// Package directory provides read-only access to the corporate directory
// (Active Directory / LDAP) and uses it to enrich asset telemetry.
package directory

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// ErrNotFound is returned when the directory has no matching object.
var ErrNotFound = errors.New("directory object not found")

// serviceAccountGroup marks accounts that run services rather than people.
const serviceAccountGroup = "Service-Accounts"

// Computer is a directory computer object.
type Computer struct {
	CN              string    `json:"cn"`
	DNSHostName     string    `json:"dNSHostName"`
	OperatingSystem string    `json:"operatingSystem"`
	OU              string    `json:"ou"`
	LastLogon       time.Time `json:"lastLogon"`
}

// User is a directory user object.
type User struct {
	CN             string    `json:"cn"`
	SAMAccountName string    `json:"sAMAccountName"`
	Mail           *string   `json:"mail"`
	Department     string    `json:"department"`
	MemberOf       []string  `json:"memberOf"`
	LastLogon      time.Time `json:"lastLogon"`
	Enabled        bool      `json:"enabled"`
	Privileged     bool      `json:"privileged"`
}

// Group is a directory group object.
type Group struct {
	CN         string   `json:"cn"`
	Members    []string `json:"members"`
	Type       string   `json:"type"`
	Privileged bool     `json:"privileged"`
}

// Directory is the read-only lookup surface the ingestion path depends on.
type Directory interface {
	// Domain returns the DNS name of the directory domain, e.g. "corp.local".
	Domain() string

	// LookupComputer finds a computer by short name or DNS host name.
	// It returns ErrNotFound when no computer matches.
	LookupComputer(ctx context.Context, hostname string) (*Computer, error)

	// LookupUser finds a user by sAMAccountName.
	LookupUser(ctx context.Context, account string) (*User, error)

	// PrivilegedAccounts lists every user flagged as privileged.
	PrivilegedAccounts(ctx context.Context) ([]User, error)
}

// Enricher fills directory-derived fields of a vector context.
type Enricher struct {
	dir    Directory
	logger *zap.Logger
}

// NewEnricher creates an Enricher backed by dir.
func NewEnricher(dir Directory, logger *zap.Logger) *Enricher {
	return &Enricher{dir: dir, logger: logger}
}

// Enrich fills empty D2 identity fields (ad_domain, ad_ou, ad_groups) and the
// D13 service account list from the directory. Only dimensions already
// present in v are touched. Lookup failures are logged and leave v unchanged.
// It reports whether any field was filled.
func (e *Enricher) Enrich(ctx context.Context, v *model.VectorContext, hostname string) bool {
	if e == nil || e.dir == nil || v == nil {
		return false
	}
	changed := false

	if d := v.D2Identity; d != nil {
		changed = e.enrichIdentity(ctx, d, hostname) || changed
	}
	if d := v.D13Privilege; d != nil && len(d.ServiceAccounts) == 0 {
		accounts, err := e.dir.PrivilegedAccounts(ctx)
		if err != nil {
			e.logger.Warn("directory privileged account lookup failed", zap.Error(err))
		} else if svc := serviceAccounts(accounts); len(svc) > 0 {
			d.ServiceAccounts = svc
			changed = true
		}
	}
	return changed
}

func (e *Enricher) enrichIdentity(ctx context.Context, d *model.IdentityDimension, hostname string) bool {
	changed := false

	comp, err := e.dir.LookupComputer(ctx, hostname)
	switch {
	case errors.Is(err, ErrNotFound):
		e.logger.Debug("host not in directory", zap.String("hostname", hostname))
	case err != nil:
		e.logger.Warn("directory computer lookup failed", zap.String("hostname", hostname), zap.Error(err))
	default:
		if d.ADDomain == nil {
			domain := e.dir.Domain()
			d.ADDomain = &domain
			changed = true
		}
		if d.ADOU == nil && comp.OU != "" {
			ou := comp.OU
			d.ADOU = &ou
			changed = true
		}
	}

	if len(d.ADGroups) == 0 && d.LastLoginUser != nil {
		user, err := e.dir.LookupUser(ctx, *d.LastLoginUser)
		if err == nil && len(user.MemberOf) > 0 {
			d.ADGroups = append([]string(nil), user.MemberOf...)
			changed = true
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			e.logger.Warn("directory user lookup failed", zap.String("user", *d.LastLoginUser), zap.Error(err))
		}
	}
	return changed
}

func serviceAccounts(users []User) []string {
	var out []string
	for _, u := range users {
		for _, g := range u.MemberOf {
			if g == serviceAccountGroup {
				out = append(out, u.SAMAccountName)
				break
			}
		}
	}
	return out
}
