package models

import (
	"database/sql/driver"
	"fmt"
)

// ProjectLinkStatus records how far a task's task→project→brand→client chain resolves.
// The zero value is ProjectLinkUnknown, produced only when a stored value is unrecognised;
// it cannot be written back.
type ProjectLinkStatus uint8

const (
	ProjectLinkUnknown ProjectLinkStatus = iota
	ProjectLinked
	ProjectLinkPartial
	ProjectUnlinked
)

var projectLinkNames = map[ProjectLinkStatus]string{
	ProjectLinked:      "linked",
	ProjectLinkPartial: "partial",
	ProjectUnlinked:    "unlinked",
}

func (s ProjectLinkStatus) String() string {
	if name, ok := projectLinkNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseProjectLinkStatus maps a stored string to its status.
func ParseProjectLinkStatus(v string) (ProjectLinkStatus, error) {
	for s, name := range projectLinkNames {
		if name == v {
			return s, nil
		}
	}
	return ProjectLinkUnknown, fmt.Errorf("models: invalid project link status %q", v)
}

// Value implements driver.Valuer.
func (s ProjectLinkStatus) Value() (driver.Value, error) {
	if s == ProjectLinkUnknown {
		return nil, fmt.Errorf("models: refusing to write unknown project link status")
	}
	return s.String(), nil
}

// ClientLinkStatus records whether a task resolves to a client.
// ClientLinkNA marks tasks on internal projects, where no client applies.
type ClientLinkStatus uint8

const (
	ClientLinkUnknown ClientLinkStatus = iota
	ClientLinked
	ClientUnlinked
	ClientLinkNA
)

var clientLinkNames = map[ClientLinkStatus]string{
	ClientLinked:   "linked",
	ClientUnlinked: "unlinked",
	ClientLinkNA:   "n/a",
}

func (s ClientLinkStatus) String() string {
	if name, ok := clientLinkNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseClientLinkStatus maps a stored string to its status.
func ParseClientLinkStatus(v string) (ClientLinkStatus, error) {
	for s, name := range clientLinkNames {
		if name == v {
			return s, nil
		}
	}
	return ClientLinkUnknown, fmt.Errorf("models: invalid client link status %q", v)
}

// Value implements driver.Valuer.
func (s ClientLinkStatus) Value() (driver.Value, error) {
	if s == ClientLinkUnknown {
		return nil, fmt.Errorf("models: refusing to write unknown client link status")
	}
	return s.String(), nil
}

// CommLinkStatus records whether a communication resolved to a client.
type CommLinkStatus uint8

const (
	CommLinkUnknown CommLinkStatus = iota
	CommLinked
	CommUnlinked
)

func (s CommLinkStatus) String() string {
	switch s {
	case CommLinked:
		return "linked"
	case CommUnlinked:
		return "unlinked"
	default:
		return "unknown"
	}
}

// ParseCommLinkStatus maps a stored string to its status.
func ParseCommLinkStatus(v string) (CommLinkStatus, error) {
	switch v {
	case "linked":
		return CommLinked, nil
	case "unlinked":
		return CommUnlinked, nil
	}
	return CommLinkUnknown, fmt.Errorf("models: invalid communication link status %q", v)
}

// Value implements driver.Valuer.
func (s CommLinkStatus) Value() (driver.Value, error) {
	if s == CommLinkUnknown {
		return nil, fmt.Errorf("models: refusing to write unknown communication link status")
	}
	return s.String(), nil
}

// AgingBucket is the accounts-receivable aging band of a valid-AR invoice.
// AgingNone is stored as NULL and means "not valid AR".
type AgingBucket uint8

const (
	AgingNone AgingBucket = iota
	AgingCurrent
	Aging1To30
	Aging31To60
	Aging61To90
	Aging90Plus
)

var agingNames = map[AgingBucket]string{
	AgingCurrent: "current",
	Aging1To30:   "1-30",
	Aging31To60:  "31-60",
	Aging61To90:  "61-90",
	Aging90Plus:  "90+",
}

func (b AgingBucket) String() string {
	if name, ok := agingNames[b]; ok {
		return name
	}
	return ""
}

// ParseAgingBucket maps a stored string to its bucket. The empty string is AgingNone.
func ParseAgingBucket(v string) (AgingBucket, error) {
	if v == "" {
		return AgingNone, nil
	}
	for b, name := range agingNames {
		if name == v {
			return b, nil
		}
	}
	return AgingNone, fmt.Errorf("models: invalid aging bucket %q", v)
}

// Value implements driver.Valuer. AgingNone is written as NULL.
func (b AgingBucket) Value() (driver.Value, error) {
	if b == AgingNone {
		return nil, nil
	}
	return b.String(), nil
}

// InvoiceStatus is the accounting status of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoiceVoid    InvoiceStatus = "void"
)

// IsAR reports whether the status counts toward accounts receivable.
func (s InvoiceStatus) IsAR() bool {
	return s == InvoiceSent || s == InvoiceOverdue
}

// EntityType names the table a resolution item points at.
type EntityType string

const (
	EntityTask          EntityType = "task"
	EntityProject       EntityType = "project"
	EntityCommunication EntityType = "communication"
	EntityInvoice       EntityType = "invoice"
)

// IssueType names the linkage defect a resolution item describes.
type IssueType string

const (
	IssueTaskUnlinked         IssueType = "unlinked_project"
	IssueChainBroken          IssueType = "chain_broken"
	IssueClientUnlinkedSanity IssueType = "client_unlinked_sanity"
	IssueProjectMissingBrand  IssueType = "missing_brand"
	IssueCommUnlinked         IssueType = "unlinked_commitments"
	IssueInvoiceMissingDue    IssueType = "missing_due_date"
	IssueInvoiceMissingClient IssueType = "missing_client"
)
