package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_LeftKeepsUnmatchedRows(t *testing.T) {
	left := FromRecords([]string{"asset_id", "product_name"}, [][]string{
		{"AS1", "Fiber"},
		{"AS9", "Fiber"},
	})
	right := FromRecords([]string{"asset_id", "asset_status"}, [][]string{
		{"AS1", "Active"},
	})

	out, err := Join(left, right, JoinStep{LeftKeys: []string{"asset_id"}, RightKeys: []string{"asset_id"}, Type: LeftJoin})
	require.NoError(t, err)

	require.Equal(t, 2, out.Len())
	assert.Equal(t, []string{"asset_id", "product_name", "asset_status"}, out.Columns, "shared key is not repeated")
	assert.Equal(t, "Active", out.Rows[0]["asset_status"])
	assert.Nil(t, out.Rows[1]["asset_status"])
	_, present := out.Rows[1]["asset_status"]
	assert.True(t, present, "unmatched rows carry the right columns as nil")
}

func TestJoin_InnerDropsUnmatchedRows(t *testing.T) {
	left := FromRecords([]string{"id"}, [][]string{{"1"}, {"2"}})
	right := FromRecords([]string{"rid", "v"}, [][]string{{"2", "x"}})

	out, err := Join(left, right, JoinStep{LeftKeys: []string{"id"}, RightKeys: []string{"rid"}, Type: InnerJoin})
	require.NoError(t, err)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, "2", out.Rows[0]["rid"], "differently named keys are both kept")
}

func TestJoin_FanOut(t *testing.T) {
	left := FromRecords([]string{"k"}, [][]string{{"1"}})
	right := FromRecords([]string{"k", "v"}, [][]string{{"1", "a"}, {"1", "b"}})

	out, err := Join(left, right, JoinStep{LeftKeys: []string{"k"}, RightKeys: []string{"k"}, Type: LeftJoin})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestJoin_NullKeysNeverMatch(t *testing.T) {
	left := &Table{Columns: []string{"k"}, Rows: []Row{{"k": nil}}}
	right := &Table{Columns: []string{"k", "v"}, Rows: []Row{{"k": nil, "v": "x"}}}

	out, err := Join(left, right, JoinStep{LeftKeys: []string{"k"}, RightKeys: []string{"k"}, Type: LeftJoin})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Nil(t, out.Rows[0]["v"])
}

func TestJoin_NumericAndTextKeysMatch(t *testing.T) {
	left := &Table{Columns: []string{"k"}, Rows: []Row{{"k": int64(42)}}}
	right := &Table{Columns: []string{"k", "v"}, Rows: []Row{{"k": "42", "v": "x"}}}

	out, err := Join(left, right, JoinStep{LeftKeys: []string{"k"}, RightKeys: []string{"k"}, Type: LeftJoin})
	require.NoError(t, err)
	assert.Equal(t, "x", out.Rows[0]["v"])
}

func TestJoin_CollisionWithoutSuffixFails(t *testing.T) {
	left := FromRecords([]string{"id", "account_id"}, [][]string{{"1", "A"}})
	right := FromRecords([]string{"id", "account_id"}, [][]string{{"1", "B"}})

	_, err := Join(left, right, JoinStep{LeftKeys: []string{"id"}, RightKeys: []string{"id"}, Type: LeftJoin})
	assert.ErrorIs(t, err, ErrColumnCollision)
}

func TestJoin_CollisionWithSuffix(t *testing.T) {
	left := FromRecords([]string{"id", "created_at"}, [][]string{{"1", "2024-01-01"}})
	right := FromRecords([]string{"id", "created_at"}, [][]string{{"1", "2024-02-01"}})

	out, err := Join(left, right, JoinStep{LeftKeys: []string{"id"}, RightKeys: []string{"id"}, Type: LeftJoin, Suffix: "_order"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", out.Rows[0]["created_at"])
	assert.Equal(t, "2024-02-01", out.Rows[0]["created_at_order"])
}

func TestJoin_MissingKey(t *testing.T) {
	left := New("a")
	right := New("b")
	_, err := Join(left, right, JoinStep{LeftKeys: []string{"x"}, RightKeys: []string{"b"}, Type: LeftJoin})
	assert.ErrorContains(t, err, `left key "x" not found`)
}

func TestExecute_PlanWithRenames(t *testing.T) {
	data := Datasets{
		"products": FromRecords([]string{"billing_account_id", "asset_id"}, [][]string{{"BA1", "AS1"}}),
		"accounts": FromRecords([]string{"billing_account_id", "account_id"}, [][]string{{"BA1", "SA1"}}),
		"assets":   FromRecords([]string{"asset_id", "account_id"}, [][]string{{"AS1", "SA1"}}),
	}
	plan := JoinPlan{
		Base:       "products",
		BaseRename: map[string]string{"billing_account_id": "billing_account_id_bp"},
		Steps: []JoinStep{
			{
				Right:     "accounts",
				Rename:    map[string]string{"billing_account_id": "billing_account_id_bacc", "account_id": "billing_siebel_account_id"},
				LeftKeys:  []string{"billing_account_id_bp"},
				RightKeys: []string{"billing_account_id_bacc"},
				Type:      LeftJoin,
			},
			{
				Right:     "assets",
				Rename:    map[string]string{"account_id": "siebel_asset_account_id"},
				LeftKeys:  []string{"asset_id"},
				RightKeys: []string{"asset_id"},
				Type:      LeftJoin,
			},
		},
	}

	out, err := Execute(plan, data)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "SA1", out.Rows[0]["billing_siebel_account_id"])
	assert.Equal(t, "SA1", out.Rows[0]["siebel_asset_account_id"])
}

func TestExecute_UnrenamedAccountIDCollides(t *testing.T) {
	data := Datasets{
		"accounts": FromRecords([]string{"billing_account_id", "account_id"}, [][]string{{"BA1", "SA1"}}),
		"assets":   FromRecords([]string{"billing_account_id", "account_id"}, [][]string{{"BA1", "SA2"}}),
	}
	plan := JoinPlan{
		Base: "accounts",
		Steps: []JoinStep{{
			Right: "assets", LeftKeys: []string{"billing_account_id"}, RightKeys: []string{"billing_account_id"}, Type: LeftJoin,
		}},
	}

	_, err := Execute(plan, data)
	assert.ErrorIs(t, err, ErrColumnCollision)
}

func TestJoinPlan_Validate(t *testing.T) {
	assert.Error(t, JoinPlan{}.Validate())
	assert.Error(t, JoinPlan{Base: "a", Steps: []JoinStep{{Right: "b", LeftKeys: []string{"x"}, Type: LeftJoin}}}.Validate())
	assert.Error(t, JoinPlan{Base: "a", Steps: []JoinStep{{Right: "b", LeftKeys: []string{"x"}, RightKeys: []string{"x"}, Type: "outer"}}}.Validate())
	assert.NoError(t, JoinPlan{Base: "a", Steps: []JoinStep{{Right: "b", LeftKeys: []string{"x"}, RightKeys: []string{"x"}, Type: LeftJoin}}}.Validate())
}

func TestExecute_MissingDataset(t *testing.T) {
	_, err := Execute(JoinPlan{Base: "a"}, Datasets{})
	assert.ErrorContains(t, err, "dataset a not supplied")
}

func TestExecute_RenameCollision(t *testing.T) {
	plan := JoinPlan{
		Base:       "accounts",
		BaseRename: map[string]string{"status": "account_status"},
	}
	data := Datasets{"accounts": FromRecords([]string{"id", "status", "account_status"}, [][]string{{"1", "Active", "Open"}})}

	_, err := Execute(plan, data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrColumnCollision)
	assert.Contains(t, err.Error(), "rename accounts")
}
