package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/platform/db"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	GetByID(ctx context.Context, storeID string, id int64) (*Order, error)
	GetByExternalID(ctx context.Context, storeID string, channel margin.Channel, externalID string) (*Order, error)
	FindByExternalID(ctx context.Context, storeID, externalID string) (*Order, error)
	GetByTransactionRef(ctx context.Context, storeID, ref string) (*Order, error)
	FindByExternalIDPrefix(ctx context.Context, storeID, prefix string) (*Order, error)
	ListByStatus(ctx context.Context, storeID string, status OrderStatus) ([]Order, error)
	Create(ctx context.Context, order Order) (int64, error)
	Update(ctx context.Context, order Order) error
	ReplaceLines(ctx context.Context, orderID int64, lines []SaleLine) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const orderColumns = `id, store_id, channel, external_order_id, order_date, transaction_ref,
customer_name, customer_country, payment_method, status,
shipping_charged, shipping_charged_gross, real_shipping_cost,
fees_platform, fees_processor, net_received,
tracking_number, tracking_url, shipment_status,
last_source, source_payload, created_at, updated_at`

func (r *repository) GetByID(ctx context.Context, storeID string, id int64) (*Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE store_id=$1 AND id=$2`, orderColumns)
	return r.getOne(ctx, query, storeID, id)
}

func (r *repository) GetByExternalID(ctx context.Context, storeID string, channel margin.Channel, externalID string) (*Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE store_id=$1 AND channel=$2 AND external_order_id=$3`, orderColumns)
	return r.getOne(ctx, query, storeID, string(channel), externalID)
}

// FindByExternalID is the channel-agnostic variant of GetByExternalID, for
// facts that carry an order code but no channel of their own.
func (r *repository) FindByExternalID(ctx context.Context, storeID, externalID string) (*Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE store_id=$1 AND external_order_id=$2 ORDER BY created_at DESC LIMIT 1`, orderColumns)
	return r.getOne(ctx, query, storeID, externalID)
}

func (r *repository) GetByTransactionRef(ctx context.Context, storeID, ref string) (*Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE store_id=$1 AND transaction_ref=$2 ORDER BY created_at DESC LIMIT 1`, orderColumns)
	return r.getOne(ctx, query, storeID, ref)
}

func (r *repository) FindByExternalIDPrefix(ctx context.Context, storeID, prefix string) (*Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE store_id=$1 AND external_order_id LIKE $2 || '%%' ORDER BY created_at DESC LIMIT 1`, orderColumns)
	return r.getOne(ctx, query, storeID, prefix)
}

func (r *repository) getOne(ctx context.Context, query string, args ...interface{}) (*Order, error) {
	row := r.db.QueryRow(ctx, query, args...)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("orders: query order: %w", err)
	}
	lines, err := r.linesFor(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (r *repository) ListByStatus(ctx context.Context, storeID string, status OrderStatus) ([]Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE store_id=$1 AND status=$2 ORDER BY created_at`, orderColumns)
	rows, err := r.db.Query(ctx, query, storeID, string(status))
	if err != nil {
		return nil, fmt.Errorf("orders: list by status: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("orders: scan order: %w", err)
		}
		out = append(out, *order)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.StoreID, &o.Channel, &o.ExternalOrderID, &o.OrderDate, &o.TransactionRef,
		&o.CustomerName, &o.CustomerCountry, &o.PaymentMethod, &o.Status,
		&o.ShippingCharged, &o.ShippingChargedGross, &o.RealShippingCost,
		&o.FeesPlatform, &o.FeesProcessor, &o.NetReceived,
		&o.TrackingNumber, &o.TrackingURL, &o.ShipmentStatus,
		&o.LastSource, &o.SourcePayload, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) Create(ctx context.Context, order Order) (int64, error) {
	var id int64
	now := time.Now()
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (
			store_id, channel, external_order_id, order_date, transaction_ref,
			customer_name, customer_country, payment_method, status,
			shipping_charged, shipping_charged_gross, real_shipping_cost,
			fees_platform, fees_processor, net_received,
			tracking_number, tracking_url, shipment_status,
			last_source, source_payload, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$21)
		RETURNING id`,
		order.StoreID, string(order.Channel), order.ExternalOrderID, order.OrderDate, order.TransactionRef,
		order.CustomerName, order.CustomerCountry, order.PaymentMethod, string(order.Status),
		order.ShippingCharged, order.ShippingChargedGross, order.RealShippingCost,
		order.FeesPlatform, order.FeesProcessor, order.NetReceived,
		order.TrackingNumber, order.TrackingURL, order.ShipmentStatus,
		order.LastSource, order.SourcePayload, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("orders: insert order: %w", err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, order Order) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET
			order_date=$2, transaction_ref=$3, customer_name=$4, customer_country=$5,
			payment_method=$6, status=$7,
			shipping_charged=$8, shipping_charged_gross=$9, real_shipping_cost=$10,
			fees_platform=$11, fees_processor=$12, net_received=$13,
			tracking_number=$14, tracking_url=$15, shipment_status=$16,
			last_source=$17, source_payload=$18, updated_at=$19
		WHERE id=$1`,
		order.ID,
		order.OrderDate, order.TransactionRef, order.CustomerName, order.CustomerCountry,
		order.PaymentMethod, string(order.Status),
		order.ShippingCharged, order.ShippingChargedGross, order.RealShippingCost,
		order.FeesPlatform, order.FeesProcessor, order.NetReceived,
		order.TrackingNumber, order.TrackingURL, order.ShipmentStatus,
		order.LastSource, order.SourcePayload, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("orders: update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ReplaceLines writes the full line set for an order. Line replacement is
// wholesale: the existing rows go away and the computed set takes their
// place in one statement batch.
func (r *repository) ReplaceLines(ctx context.Context, orderID int64, lines []SaleLine) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sale_lines WHERE order_id=$1`, orderID); err != nil {
		return fmt.Errorf("orders: delete lines: %w", err)
	}
	now := time.Now()
	for _, l := range lines {
		_, err := r.db.Exec(ctx, `
			INSERT INTO sale_lines (
				order_id, product_ref, category, quantity, unit_sell_price, unit_cost,
				payment_method, power_rating_w,
				shipping_charged_part, shipping_charged_gross_part, shipping_cost_part,
				sell_total, transaction_value, commission, fee, net_received,
				total_cost, gross_margin, net_margin, net_margin_pct,
				tracking_number, tracking_url, real_shipping_cost, attachment_ids,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$25)`,
			orderID, l.ProductRef, string(l.Category), l.Quantity, l.UnitSellPrice, l.UnitCost,
			string(l.PaymentMethod), l.PowerRatingW,
			l.ShippingChargedPart, l.ShippingChargedGrossPart, l.ShippingCostPart,
			l.SellTotal, l.TransactionValue, l.Commission, l.Fee, l.NetReceived,
			l.TotalCost, l.GrossMargin, l.NetMargin, l.NetMarginPct,
			l.TrackingNumber, l.TrackingURL, l.RealShippingCost, l.AttachmentIDs,
			now,
		)
		if err != nil {
			return fmt.Errorf("orders: insert line %s: %w", l.ProductRef, err)
		}
	}
	return nil
}

func (r *repository) linesFor(ctx context.Context, orderID int64) ([]SaleLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_ref, category, quantity, unit_sell_price, unit_cost,
			payment_method, power_rating_w,
			shipping_charged_part, shipping_charged_gross_part, shipping_cost_part,
			sell_total, transaction_value, commission, fee, net_received,
			total_cost, gross_margin, net_margin, net_margin_pct,
			tracking_number, tracking_url, real_shipping_cost, attachment_ids,
			created_at, updated_at
		FROM sale_lines WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: query lines: %w", err)
	}
	defer rows.Close()

	var lines []SaleLine
	for rows.Next() {
		var l SaleLine
		err := rows.Scan(
			&l.ID, &l.OrderID, &l.ProductRef, &l.Category, &l.Quantity, &l.UnitSellPrice, &l.UnitCost,
			&l.PaymentMethod, &l.PowerRatingW,
			&l.ShippingChargedPart, &l.ShippingChargedGrossPart, &l.ShippingCostPart,
			&l.SellTotal, &l.TransactionValue, &l.Commission, &l.Fee, &l.NetReceived,
			&l.TotalCost, &l.GrossMargin, &l.NetMargin, &l.NetMarginPct,
			&l.TrackingNumber, &l.TrackingURL, &l.RealShippingCost, &l.AttachmentIDs,
			&l.CreatedAt, &l.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("orders: scan line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
