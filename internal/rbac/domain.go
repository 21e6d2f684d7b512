package rbac

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPermission reports a permission name outside the canonical table.
var ErrUnknownPermission = errors.New("rbac: unknown permission")

// Permission is a set of capabilities encoded as a 32-bit mask. Bits without a
// canonical name are carried as-is.
type Permission uint32

// Named capabilities. New bits are only ever appended so stored masks keep
// their meaning.
const (
	InventoryRead Permission = 1 << iota
	InventoryWrite
	OrderRead
	OrderWrite
	CustomersRead
	CustomersWrite
	SuppliersRead
	SuppliersCreate
	SuppliersUpdate
	PurchaseRead
	PurchaseWrite
	PaymentRead
	PaymentWrite
	ExpensesRead
	ExpensesWrite
	Reports
	Settings
	UserRead
	UserWrite
	ManageDB
)

const (
	// None is the empty set; every principal satisfies it.
	None Permission = 0
	// Admin has every bit set and therefore satisfies every check.
	Admin Permission = 0xFFFF_FFFF
)

// Definition names a single canonical permission value.
type Definition struct {
	Name string     `json:"name"`
	Bit  Permission `json:"bit"`
}

var canonical = []Definition{
	{Name: "INVENTORY_READ", Bit: InventoryRead},
	{Name: "INVENTORY_WRITE", Bit: InventoryWrite},
	{Name: "ORDER_READ", Bit: OrderRead},
	{Name: "ORDER_WRITE", Bit: OrderWrite},
	{Name: "CUSTOMERS_READ", Bit: CustomersRead},
	{Name: "CUSTOMERS_WRITE", Bit: CustomersWrite},
	{Name: "SUPPLIERS_READ", Bit: SuppliersRead},
	{Name: "SUPPLIERS_CREATE", Bit: SuppliersCreate},
	{Name: "SUPPLIERS_UPDATE", Bit: SuppliersUpdate},
	{Name: "PURCHASE_READ", Bit: PurchaseRead},
	{Name: "PURCHASE_WRITE", Bit: PurchaseWrite},
	{Name: "PAYMENT_READ", Bit: PaymentRead},
	{Name: "PAYMENT_WRITE", Bit: PaymentWrite},
	{Name: "EXPENSES_READ", Bit: ExpensesRead},
	{Name: "EXPENSES_WRITE", Bit: ExpensesWrite},
	{Name: "REPORTS", Bit: Reports},
	{Name: "SETTINGS", Bit: Settings},
	{Name: "USER_READ", Bit: UserRead},
	{Name: "USER_WRITE", Bit: UserWrite},
	{Name: "MANAGE_DB", Bit: ManageDB},
	{Name: "ADMIN", Bit: Admin},
}

// Canonical returns the ordered table of named permissions.
func Canonical() []Definition {
	out := make([]Definition, len(canonical))
	copy(out, canonical)
	return out
}

// Union combines any number of sets.
func Union(perms ...Permission) Permission {
	var out Permission
	for _, p := range perms {
		out |= p
	}
	return out
}

// Union returns p combined with o.
func (p Permission) Union(o Permission) Permission {
	return p | o
}

// Contains reports whether every bit of required is present in p.
func (p Permission) Contains(required Permission) bool {
	return p&required == required
}

// Names lists the canonical names fully contained in p, in table order.
func (p Permission) Names() []string {
	names := make([]string, 0, len(canonical))
	for _, def := range canonical {
		if p.Contains(def.Bit) {
			names = append(names, def.Name)
		}
	}
	return names
}

// String joins the canonical names in p and appends any bits left unnamed.
func (p Permission) String() string {
	names := p.Names()
	if len(names) == 0 {
		return fmt.Sprintf("NONE(%#x)", uint32(p))
	}
	var named Permission
	for _, def := range canonical {
		if p.Contains(def.Bit) {
			named |= def.Bit
		}
	}
	if rest := p &^ named; rest != None {
		names = append(names, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// Lookup resolves a single canonical name. Matching ignores case and
// surrounding whitespace.
func Lookup(name string) (Permission, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, def := range canonical {
		if def.Name == name {
			return def.Bit, true
		}
	}
	return None, false
}

// FromNames folds a list of canonical names into a set.
func FromNames(names []string) (Permission, error) {
	out := None
	for _, name := range names {
		bit, ok := Lookup(name)
		if !ok {
			return None, fmt.Errorf("%w: %q", ErrUnknownPermission, name)
		}
		out = out.Union(bit)
	}
	return out, nil
}

// NameList is the API representation of a Permission: a JSON array of
// canonical names.
type NameList []string

// MarshalJSON keeps empty sets as [] rather than null.
func (l NameList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Permission converts the list back to a mask.
func (l NameList) Permission() (Permission, error) {
	return FromNames(l)
}
