package app

import "invoice-reconciler/internal/core"

// UnmappedItemsResult is returned by ListUnmappedItems.
type UnmappedItemsResult struct {
	VendorID int                 `json:"vendor_id"`
	Status   string              `json:"status,omitempty"`
	Items    []core.UnmappedItem `json:"items"`
}
