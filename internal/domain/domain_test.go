package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNamespaceAllowList(t *testing.T) {
	valid := []string{"bakery_acme_1700000000000_ab12cd", "Tenant_1", "x"}
	for _, s := range valid {
		_, err := ParseNamespace(s)
		assert.NoError(t, err, s)
	}

	invalid := []string{
		"",
		"bakery-acme",
		`acme"; DROP SCHEMA public CASCADE; --`,
		"acme.products",
		"acme products",
		"ácme",
		"public",
		"PUBLIC",
		"pg_catalog",
		"information_schema",
		strings.Repeat("a", MaxNamespaceLen+1),
	}
	for _, s := range invalid {
		_, err := ParseNamespace(s)
		assert.Error(t, err, s)
	}
}

func TestDeriveNamespace(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	orig := randomSuffix
	randomSuffix = func() string { return "a1b2c3" }
	defer func() { randomSuffix = orig }()

	ns, err := DeriveNamespace("Acme Bakery & Co.", at)
	require.NoError(t, err)
	assert.Equal(t, "bakery_acme_bakery_co_1700000000123_a1b2c3", ns.String())

	ns, err = DeriveNamespace("!!!", at)
	require.NoError(t, err)
	assert.Equal(t, "bakery_tenant_1700000000123_a1b2c3", ns.String())

	ns, err = DeriveNamespace(strings.Repeat("very long name ", 10), at)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(ns.String()), MaxNamespaceLen)
	assert.True(t, strings.HasSuffix(ns.String(), "_1700000000123_a1b2c3"))
}

func TestDeriveNamespaceSameNameDiffers(t *testing.T) {
	at := time.Now()
	a, err := DeriveNamespace("Acme", at)
	require.NoError(t, err)
	b, err := DeriveNamespace("Acme", at)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNamespaceJSON(t *testing.T) {
	var out struct {
		NS Namespace `json:"ns"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"ns":"bakery_acme_1"}`), &out))
	assert.Equal(t, "bakery_acme_1", out.NS.String())

	assert.Error(t, json.Unmarshal([]byte(`{"ns":"bad;name"}`), &out))
}

func TestParseRoles(t *testing.T) {
	set, err := ParseRoles([]string{"Baker", "Cashier", "Baker"})
	require.NoError(t, err)
	assert.Equal(t, RoleSet{RoleBaker, RoleCashier}, set)
	assert.True(t, set.HasAny(RoleOwner, RoleCashier))
	assert.False(t, set.IsGlobal())

	_, err = ParseRoles([]string{"baker"})
	assert.Error(t, err, "role names are case sensitive")
}

func TestIdentityCanManageTenant(t *testing.T) {
	owner := Identity{UserID: 1, TenantID: 7, Roles: RoleSet{RoleOwner}}
	baker := Identity{UserID: 2, TenantID: 7, Roles: RoleSet{RoleBaker}}
	super := Identity{UserID: 3, Roles: RoleSet{RoleSuperAdmin}}

	assert.True(t, owner.CanManageTenant(7))
	assert.False(t, owner.CanManageTenant(8))
	assert.False(t, baker.CanManageTenant(7))
	assert.True(t, super.CanManageTenant(8))
}

func TestPurchaseStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to PurchaseStatus
		ok       bool
	}{
		{PurchasePending, PurchaseApproved, true},
		{PurchasePending, PurchaseRejected, true},
		{PurchasePending, PurchaseCompleted, false},
		{PurchaseApproved, PurchaseCompleted, true},
		{PurchaseApproved, PurchaseRejected, false},
		{PurchaseRejected, PurchaseApproved, false},
		{PurchaseCompleted, PurchasePending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, PurchaseRejected.IsTerminal())
	assert.False(t, PurchaseApproved.IsTerminal())
}

func TestRecipeCost(t *testing.T) {
	lines := []RecipeLine{
		{IngredientID: 1, Quantity: decimal.NewFromInt(2), UnitCost: decimal.RequireFromString("1.50")},
		{IngredientID: 2, Quantity: decimal.NewFromInt(1), UnitCost: decimal.RequireFromString("3.00")},
		{IngredientID: 3, Quantity: decimal.NewFromInt(5)},
	}
	assert.True(t, decimal.RequireFromString("6.00").Equal(RecipeCost(lines)))
}

func TestProfitLossFinalize(t *testing.T) {
	p := ProfitLoss{
		Revenue:          decimal.NewFromInt(1000),
		COGS:             decimal.NewFromInt(400),
		FixedExpenses:    decimal.NewFromInt(200),
		VariableExpenses: decimal.NewFromInt(50),
	}
	p.Finalize()
	assert.True(t, decimal.NewFromInt(600).Equal(p.GrossProfit))
	assert.True(t, decimal.NewFromInt(250).Equal(p.TotalExpenses))
	assert.True(t, decimal.NewFromInt(350).Equal(p.NetProfit))
}

func TestExpenseEnums(t *testing.T) {
	_, err := ParseCostType("Fixed")
	assert.NoError(t, err)
	_, err = ParseFrequency("One-time")
	assert.NoError(t, err)
	_, err = ParseExpenseStatus("Refunded")
	assert.Error(t, err)
}
