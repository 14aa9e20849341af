package modules

import (
	"github.com/lalith-99/festivo/internal/clearance"
)

// Category groups modules in admin screens.
type Category string

const (
	CategoryCore       Category = "core"
	CategoryPeople     Category = "people"
	CategoryOperations Category = "operations"
	CategorySales      Category = "sales"
	CategoryFinance    Category = "finance"
)

// Tier is the pricing tier a module is sold under. Billing itself is
// not implemented; the tier only drives the stub billing_status column.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// BaselineChannel is a chat channel created for a tenant when the
// owning module is activated.
type BaselineChannel struct {
	Name         string          `json:"name"`
	IsPrivate    bool            `json:"is_private"`
	MinClearance clearance.Level `json:"min_clearance"`
}

// Definition is an immutable catalog entry.
type Definition struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	Icon              string            `json:"icon"`
	Category          Category          `json:"category"`
	Tier              Tier              `json:"tier"`
	Free              bool              `json:"free"`
	Permissions       []string          `json:"permissions"`
	RequiredClearance clearance.Level   `json:"required_clearance"`
	Core              bool              `json:"core"`
	BaselineChannels  []BaselineChannel `json:"baseline_channels,omitempty"`
}

// Well-known module IDs referenced from code.
const (
	Dashboard  = "dashboard"
	Messaging  = "messaging"
	Members    = "members"
	Settings   = "settings"
	Volunteers = "volunteers"
	Ticketing  = "ticketing"
)

// The catalog is a compile-time table. Adding a module is a deploy, not
// a runtime operation, so nothing here needs locking.
var coreCatalog = []Definition{
	{
		ID:                Dashboard,
		Name:              "Dashboard",
		Description:       "Event overview and quick links.",
		Icon:              "layout-dashboard",
		Category:          CategoryCore,
		Tier:              TierFree,
		Free:              true,
		Permissions:       []string{"dashboard:read"},
		RequiredClearance: clearance.Red,
		Core:              true,
	},
	{
		ID:                Messaging,
		Name:              "Messaging",
		Description:       "Channels, mentions and unread tracking.",
		Icon:              "message-square",
		Category:          CategoryCore,
		Tier:              TierFree,
		Free:              true,
		Permissions:       []string{"messages:read", "messages:write"},
		RequiredClearance: clearance.Red,
		Core:              true,
	},
	{
		ID:                Members,
		Name:              "Members",
		Description:       "Member directory, roles and clearance.",
		Icon:              "users",
		Category:          CategoryCore,
		Tier:              TierFree,
		Free:              true,
		Permissions:       []string{"members:read", "members:write"},
		RequiredClearance: clearance.Orange,
		Core:              true,
	},
	{
		ID:                Settings,
		Name:              "Settings",
		Description:       "Event settings, modules and invite codes.",
		Icon:              "settings",
		Category:          CategoryCore,
		Tier:              TierFree,
		Free:              true,
		Permissions:       []string{"settings:read", "settings:write"},
		RequiredClearance: clearance.Blue,
		Core:              true,
	},
}

var optionalCatalog = []Definition{
	{
		ID:                Volunteers,
		Name:              "Volunteers",
		Description:       "Volunteer onboarding, missions and assignments.",
		Icon:              "hand-heart",
		Category:          CategoryPeople,
		Tier:              TierFree,
		Free:              true,
		Permissions:       []string{"volunteers:read", "volunteers:write", "missions:read", "missions:write"},
		RequiredClearance: clearance.Red,
		BaselineChannels: []BaselineChannel{
			{Name: "volunteers", MinClearance: clearance.Red},
			{Name: "volunteer-coordination", IsPrivate: true, MinClearance: clearance.Yellow},
		},
	},
	{
		ID:                Ticketing,
		Name:              "Ticketing",
		Description:       "Ticket types, sales windows and check-in.",
		Icon:              "ticket",
		Category:          CategorySales,
		Tier:              TierStarter,
		Permissions:       []string{"tickets:read", "tickets:write"},
		RequiredClearance: clearance.Orange,
		BaselineChannels: []BaselineChannel{
			{Name: "box-office", MinClearance: clearance.Orange},
		},
	},
	{
		ID:                "scheduling",
		Name:              "Scheduling",
		Description:       "Stages, line-up and timetable.",
		Icon:              "calendar",
		Category:          CategoryOperations,
		Tier:              TierStarter,
		Permissions:       []string{"schedule:read", "schedule:write"},
		RequiredClearance: clearance.Red,
	},
	{
		ID:                "accreditation",
		Name:              "Accreditation",
		Description:       "Badges, zones and access lists.",
		Icon:              "badge-check",
		Category:          CategoryPeople,
		Tier:              TierPro,
		Permissions:       []string{"accreditation:read", "accreditation:write"},
		RequiredClearance: clearance.Yellow,
		BaselineChannels: []BaselineChannel{
			{Name: "accreditation", IsPrivate: true, MinClearance: clearance.Yellow},
		},
	},
	{
		ID:                "logistics",
		Name:              "Logistics",
		Description:       "Inventory, deliveries and site plans.",
		Icon:              "truck",
		Category:          CategoryOperations,
		Tier:              TierPro,
		Permissions:       []string{"logistics:read", "logistics:write"},
		RequiredClearance: clearance.Yellow,
		BaselineChannels: []BaselineChannel{
			{Name: "logistics", MinClearance: clearance.Yellow},
		},
	},
	{
		ID:                "finance",
		Name:              "Finance",
		Description:       "Budgets and expense approvals.",
		Icon:              "wallet",
		Category:          CategoryFinance,
		Tier:              TierEnterprise,
		Permissions:       []string{"finance:read", "finance:write"},
		RequiredClearance: clearance.Green,
		BaselineChannels: []BaselineChannel{
			{Name: "finance", IsPrivate: true, MinClearance: clearance.Green},
		},
	},
}

var (
	coreByID     = index(coreCatalog)
	optionalByID = index(optionalCatalog)
)

func index(defs []Definition) map[string]Definition {
	m := make(map[string]Definition, len(defs))
	for _, d := range defs {
		m[d.ID] = d
	}
	return m
}

// Core returns the always-on modules in catalog order. The slice is a
// copy; callers may not mutate the catalog through it.
func Core() []Definition {
	return clone(coreCatalog)
}

// Optional returns the tenant-toggleable modules in catalog order.
func Optional() []Definition {
	return clone(optionalCatalog)
}

func clone(defs []Definition) []Definition {
	out := make([]Definition, len(defs))
	for i, d := range defs {
		out[i] = d.clone()
	}
	return out
}

// clone copies the slices too, so a caller cannot reach the catalog
// through the returned value.
func (d Definition) clone() Definition {
	d.Permissions = append([]string(nil), d.Permissions...)
	d.BaselineChannels = append([]BaselineChannel(nil), d.BaselineChannels...)
	return d
}

// Lookup finds a module in either catalog.
func Lookup(id string) (Definition, bool) {
	if d, ok := coreByID[id]; ok {
		return d.clone(), true
	}
	d, ok := optionalByID[id]
	if !ok {
		return Definition{}, false
	}
	return d.clone(), true
}

// LookupOptional finds a tenant-toggleable module.
func LookupOptional(id string) (Definition, bool) {
	d, ok := optionalByID[id]
	if !ok {
		return Definition{}, false
	}
	return d.clone(), true
}

func IsCore(id string) bool {
	_, ok := coreByID[id]
	return ok
}
