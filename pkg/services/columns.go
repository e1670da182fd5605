package services

// Canonical source column names. Warehouse schemas vary; these are the names
// the reconciliation joins and classification read after renaming.
const (
	ColAccountID         = "account_id"
	ColAssetID           = "asset_id"
	ColServiceNumber     = "service_number"
	ColStatus            = "status"
	ColBillingAccountID  = "billing_account_id"
	ColProductName       = "product_name"
	ColBillingAmount     = "billing_amount"
	ColAssetAmount       = "asset_amount"
	ColAssetStatus       = "asset_status"
	ColBillingAcctStatus = "billing_account_status"

	ColBillingServiceNumber = "billing_service_number"
	ColSiebelServiceNumber  = "siebel_service_number"
	ColSiebelAccountID      = "siebel_account_id"
	ColKPI                  = "kpi"
	ColServiceNoBill        = "service_no_bill"
	ColNoServiceBill        = "no_service_bill"

	// Namespaced keys produced by the join plan renames.
	colBillingAccountIDBP          = "billing_account_id_bp"
	colBillingProductServiceNumber = "billing_product_service_number"
	colBillingAccountIDBAcc        = "billing_account_id_bacc"
	colBillingAcctSiebelAcctID     = "billing_account_siebel_account_id"
	colSiebelAssetAccountID        = "siebel_asset_account_id"
	colSiebelOrderAccountID        = "siebel_order_account_id"
)

// Dataset names.
const (
	DatasetSiebelAccounts  = "siebel_accounts"
	DatasetSiebelAssets    = "siebel_assets"
	DatasetSiebelOrders    = "siebel_orders"
	DatasetBillingAccounts = "billing_accounts"
	DatasetBillingProducts = "billing_products"
)

// RequiredDatasets lists every dataset a completeness run needs, in join order.
var RequiredDatasets = []string{
	DatasetBillingProducts,
	DatasetBillingAccounts,
	DatasetSiebelAccounts,
	DatasetSiebelAssets,
	DatasetSiebelOrders,
}

// Source systems.
const (
	SystemSiebel   = "siebel"
	SystemAntillia = "antillia"
)

// systemDatasets lists the datasets each source system contributes.
var systemDatasets = map[string][]string{
	SystemSiebel:   {DatasetSiebelAccounts, DatasetSiebelAssets, DatasetSiebelOrders},
	SystemAntillia: {DatasetBillingAccounts, DatasetBillingProducts},
}
