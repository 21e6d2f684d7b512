package rbac

import (
	"encoding/json"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnionIsSupersetOfOperands(t *testing.T) {
	prop := func(a, b uint32) bool {
		u := Permission(a).Union(Permission(b))
		return u.Contains(Permission(a)) && u.Contains(Permission(b))
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestEverySetContainsNone(t *testing.T) {
	prop := func(p uint32) bool {
		return Permission(p).Contains(None)
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestAdminContainsEverything(t *testing.T) {
	prop := func(p uint32) bool {
		return Admin.Contains(Permission(p))
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestContains(t *testing.T) {
	tests := []struct {
		name     string
		set      Permission
		required Permission
		want     bool
	}{
		{"exact", OrderRead, OrderRead, true},
		{"missing", OrderRead, OrderWrite, false},
		{"partial", OrderRead, OrderRead | OrderWrite, false},
		{"superset", OrderRead | OrderWrite | Reports, OrderRead | OrderWrite, true},
		{"empty set empty requirement", None, None, true},
		{"empty set", None, InventoryRead, false},
		{"admin", Admin, ManageDB | UserWrite, true},
		{"admin required", ManageDB | UserWrite, Admin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.Contains(tt.required))
		})
	}
}

func TestUnionVariadic(t *testing.T) {
	assert.Equal(t, None, Union())
	assert.Equal(t, OrderRead|OrderWrite|Reports, Union(OrderRead, OrderWrite, Reports))
	assert.Equal(t, Union(Reports, OrderRead), Union(OrderRead, Reports))
}

func TestNamesFollowsCanonicalOrder(t *testing.T) {
	p := ManageDB | InventoryRead | OrderWrite
	assert.Equal(t, []string{"INVENTORY_READ", "ORDER_WRITE", "MANAGE_DB"}, p.Names())
	assert.Empty(t, None.Names())
}

func TestAdminNamesIncludeAdmin(t *testing.T) {
	names := Admin.Names()
	require.Len(t, names, len(canonical))
	assert.Equal(t, "ADMIN", names[len(names)-1])

	back, err := FromNames(names)
	require.NoError(t, err)
	assert.Equal(t, Admin, back)
}

func TestNamesRoundTrip(t *testing.T) {
	named := make([]Permission, 0, len(canonical))
	for _, def := range canonical {
		named = append(named, def.Bit)
	}
	// every subset of the first few named bits plus a handful of wider ones
	for mask := 0; mask < 1<<8; mask++ {
		var p Permission
		for i := 0; i < 8; i++ {
			if mask&(1<<i) != 0 {
				p |= named[i]
			}
		}
		for _, extra := range []Permission{None, Reports | Settings, UserRead | UserWrite | ManageDB} {
			in := p | extra
			out, err := FromNames(in.Names())
			require.NoError(t, err)
			assert.Equal(t, in, out, "mask %#x", uint32(in))
		}
	}
}

func TestOutOfBandBitsAreOpaque(t *testing.T) {
	p := Permission(1 << 30)
	assert.True(t, p.Contains(p))
	assert.Empty(t, p.Names())
	assert.Equal(t, "NONE(0x40000000)", p.String())
}

func TestStringKeepsUnnamedBits(t *testing.T) {
	assert.Equal(t, "ORDER_READ|0x80000000", (OrderRead | 1<<31).String())
	assert.Equal(t, "ORDER_READ|REPORTS", (OrderRead | Reports).String())
	assert.NotContains(t, Admin.String(), "0x")
}

func TestFromNames(t *testing.T) {
	p, err := FromNames([]string{"order_read", " REPORTS "})
	require.NoError(t, err)
	assert.Equal(t, OrderRead|Reports, p)

	p, err = FromNames(nil)
	require.NoError(t, err)
	assert.Equal(t, None, p)

	_, err = FromNames([]string{"ORDER_READ", "LAUNCH_MISSILES"})
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestNameListJSON(t *testing.T) {
	data, err := json.Marshal(NameList(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	data, err = json.Marshal(NameList((OrderRead | Reports).Names()))
	require.NoError(t, err)
	assert.JSONEq(t, `["ORDER_READ","REPORTS"]`, string(data))
}

func TestCanonicalReturnsCopy(t *testing.T) {
	defs := Canonical()
	defs[0].Name = "MUTATED"
	assert.Equal(t, "INVENTORY_READ", Canonical()[0].Name)
}
