package directory

import (
	"context"
	"strings"
	"time"
)

// Status summarises the directory connection.
type Status struct {
	Connected          bool      `json:"connected"`
	Domain             string    `json:"domain"`
	DomainController   string    `json:"domain_controller"`
	Port               int       `json:"port"`
	LastSync           time.Time `json:"last_sync"`
	UsersSynced        int       `json:"users_synced"`
	ComputersSynced    int       `json:"computers_synced"`
	GroupsSynced       int       `json:"groups_synced"`
	OUs                []string  `json:"ous"`
	PrivilegedAccounts int       `json:"privileged_accounts"`
	DisabledAccounts   int       `json:"disabled_accounts"`
	SchemaVersion      int       `json:"schema_version"`
	ForestLevel        string    `json:"forest_level"`
}

// Fixture is a static, in-process Directory holding a small corp.local forest.
// It stands in for a live LDAP connection.
type Fixture struct {
	domain     string
	controller string
	syncedAt   time.Time
	users      []User
	computers  []Computer
	groups     []Group
	ous        []string
}

func ts(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func mail(s string) *string { return &s }

// NewFixture returns the corp.local fixture directory.
func NewFixture() *Fixture {
	return &Fixture{
		domain:     "corp.local",
		controller: "srv-dc01.corp.local",
		syncedAt:   time.Now().UTC().Add(-15 * time.Minute),
		users: []User{
			{CN: "John Smith", SAMAccountName: "jsmith", Mail: mail("j.smith@corp.local"), Department: "IT Security", MemberOf: []string{"Domain Users", "Security-Team", "VPN-Users"}, LastLogon: ts("2026-02-28T09:15:00Z"), Enabled: true},
			{CN: "Alice Johnson", SAMAccountName: "ajohnson", Mail: mail("a.johnson@corp.local"), Department: "Engineering", MemberOf: []string{"Domain Users", "Developers", "GitHub-Access"}, LastLogon: ts("2026-02-28T08:42:00Z"), Enabled: true},
			{CN: "Bob Admin", SAMAccountName: "badmin", Mail: mail("b.admin@corp.local"), Department: "IT Ops", MemberOf: []string{"Domain Admins", "Enterprise Admins", "Schema Admins"}, LastLogon: ts("2026-02-27T17:30:00Z"), Enabled: true, Privileged: true},
			{CN: "Sara Chen", SAMAccountName: "schen", Mail: mail("s.chen@corp.local"), Department: "Finance", MemberOf: []string{"Domain Users", "Finance-Dept", "PCI-Scope"}, LastLogon: ts("2026-02-28T10:05:00Z"), Enabled: true},
			{CN: "David Okafor", SAMAccountName: "dokafor", Mail: mail("d.okafor@corp.local"), Department: "HR", MemberOf: []string{"Domain Users", "HR-Dept", "GDPR-PII-Handlers"}, LastLogon: ts("2026-02-26T14:20:00Z"), Enabled: true},
			{CN: "SVC-Backup", SAMAccountName: "svc_backup", Department: "IT Ops", MemberOf: []string{"Service-Accounts", "Backup-Operators"}, LastLogon: ts("2026-02-28T02:00:00Z"), Enabled: true, Privileged: true},
		},
		computers: []Computer{
			{CN: "WS-JSMITH", DNSHostName: "ws-jsmith.corp.local", OperatingSystem: "Windows 11 Enterprise", OU: "OU=Workstations,DC=corp,DC=local", LastLogon: ts("2026-02-28T09:00:00Z")},
			{CN: "WS-AJOHNSON", DNSHostName: "ws-ajohnson.corp.local", OperatingSystem: "Windows 11 Enterprise", OU: "OU=Workstations,DC=corp,DC=local", LastLogon: ts("2026-02-28T08:30:00Z")},
			{CN: "SRV-DC01", DNSHostName: "srv-dc01.corp.local", OperatingSystem: "Windows Server 2022", OU: "OU=DomainControllers,DC=corp,DC=local", LastLogon: ts("2026-02-28T00:00:00Z")},
			{CN: "SRV-FILE01", DNSHostName: "srv-file01.corp.local", OperatingSystem: "Windows Server 2022", OU: "OU=Servers,DC=corp,DC=local", LastLogon: ts("2026-02-28T00:00:00Z")},
			{CN: "LNX-ARKEA", DNSHostName: "arkea.corp.local", OperatingSystem: "Linux (Ubuntu)", OU: "OU=Linux,DC=corp,DC=local", LastLogon: ts("2026-02-28T10:21:00Z")},
		},
		groups: []Group{
			{CN: "Domain Admins", Members: []string{"badmin"}, Type: "Security", Privileged: true},
			{CN: "Domain Users", Members: []string{"jsmith", "ajohnson", "badmin", "schen", "dokafor"}, Type: "Distribution"},
			{CN: "Security-Team", Members: []string{"jsmith"}, Type: "Security"},
			{CN: "Developers", Members: []string{"ajohnson"}, Type: "Security"},
			{CN: "Finance-Dept", Members: []string{"schen"}, Type: "Security"},
			{CN: "GDPR-PII-Handlers", Members: []string{"dokafor", "schen"}, Type: "Security"},
			{CN: "PCI-Scope", Members: []string{"schen"}, Type: "Security"},
			{CN: "Service-Accounts", Members: []string{"svc_backup"}, Type: "Security", Privileged: true},
		},
		ous: []string{
			"OU=Workstations,DC=corp,DC=local",
			"OU=Servers,DC=corp,DC=local",
			"OU=DomainControllers,DC=corp,DC=local",
			"OU=ServiceAccounts,DC=corp,DC=local",
			"OU=Linux,DC=corp,DC=local",
		},
	}
}

// Domain implements Directory.
func (f *Fixture) Domain() string { return f.domain }

// LookupComputer implements Directory. Matching is case-insensitive against
// the CN, the full DNS host name, and its first label.
func (f *Fixture) LookupComputer(_ context.Context, hostname string) (*Computer, error) {
	h := strings.ToLower(strings.TrimSpace(hostname))
	if h == "" {
		return nil, ErrNotFound
	}
	for i := range f.computers {
		c := f.computers[i]
		dns := strings.ToLower(c.DNSHostName)
		short, _, _ := strings.Cut(dns, ".")
		if h == strings.ToLower(c.CN) || h == dns || h == short {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// LookupUser implements Directory.
func (f *Fixture) LookupUser(_ context.Context, account string) (*User, error) {
	for i := range f.users {
		if strings.EqualFold(f.users[i].SAMAccountName, account) {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// PrivilegedAccounts implements Directory.
func (f *Fixture) PrivilegedAccounts(_ context.Context) ([]User, error) {
	var out []User
	for _, u := range f.users {
		if u.Privileged {
			out = append(out, u)
		}
	}
	return out, nil
}

// PrivilegedGroups lists every group flagged as privileged.
func (f *Fixture) PrivilegedGroups(_ context.Context) []Group {
	var out []Group
	for _, g := range f.groups {
		if g.Privileged {
			out = append(out, g)
		}
	}
	return out
}

// Users lists every directory user.
func (f *Fixture) Users(_ context.Context) []User { return append([]User(nil), f.users...) }

// Computers lists every directory computer.
func (f *Fixture) Computers(_ context.Context) []Computer {
	return append([]Computer(nil), f.computers...)
}

// Groups lists every directory group.
func (f *Fixture) Groups(_ context.Context) []Group { return append([]Group(nil), f.groups...) }

// Status reports the directory connection summary.
func (f *Fixture) Status(ctx context.Context) Status {
	priv, _ := f.PrivilegedAccounts(ctx)
	disabled := 0
	for _, u := range f.users {
		if !u.Enabled {
			disabled++
		}
	}
	return Status{
		Connected:          true,
		Domain:             f.domain,
		DomainController:   f.controller,
		Port:               389,
		LastSync:           f.syncedAt,
		UsersSynced:        len(f.users),
		ComputersSynced:    len(f.computers),
		GroupsSynced:       len(f.groups),
		OUs:                append([]string(nil), f.ous...),
		PrivilegedAccounts: len(priv),
		DisabledAccounts:   disabled,
		SchemaVersion:      87,
		ForestLevel:        "Windows2016Forest",
	}
}
