package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type purchaseOrderService struct {
	pool *pgxpool.Pool
}

// NewPurchaseOrderService constructs a PurchaseOrderStore backed by PostgreSQL.
func NewPurchaseOrderService(pool *pgxpool.Pool) PurchaseOrderStore {
	return &purchaseOrderService{pool: pool}
}

// FindCandidateOrders returns open purchase orders for the query, most recent order date
// first. Ties on order date fall back to the higher id so the ordering is deterministic.
func (s *purchaseOrderService) FindCandidateOrders(ctx context.Context, q CandidateQuery) ([]PurchaseOrder, error) {
	query := `
		SELECT po.id, po.order_number, po.vendor_id, po.venue_id, po.order_date, po.status
		FROM purchase_orders po
		WHERE po.vendor_id = $1
		  AND po.venue_id = $2
		  AND po.status IN ('ordered', 'pending')
		  AND po.order_date BETWEEN $3 AND $4`
	args := []any{q.VendorID, q.VenueID, q.From, q.To}

	if q.PONumber != nil {
		query += " AND po.order_number = $5"
		args = append(args, *q.PONumber)
	}
	query += " ORDER BY po.order_date DESC, po.id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find candidate orders for vendor %d: %w", q.VendorID, err)
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		var po PurchaseOrder
		if err := rows.Scan(
			&po.ID, &po.OrderNumber, &po.VendorID, &po.VenueID, &po.OrderDate, &po.Status,
		); err != nil {
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase orders: %w", err)
	}

	for i := range orders {
		items, err := s.fetchItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// fetchItems returns a purchase order's items in line order.
func (s *purchaseOrderService) fetchItems(ctx context.Context, poID int) ([]POItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT poi.id, poi.purchase_order_id, poi.item_id, poi.sku, poi.name,
		       poi.ordered_quantity, poi.remaining_quantity, poi.unit_price
		FROM purchase_order_items poi
		WHERE poi.purchase_order_id = $1
		ORDER BY poi.line_number, poi.id`,
		poID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch items for purchase order %d: %w", poID, err)
	}
	defer rows.Close()

	var items []POItem
	for rows.Next() {
		var it POItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ItemID, &it.SKU, &it.Name,
			&it.OrderedQuantity, &it.RemainingQuantity, &it.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("scan purchase order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
