package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
)

type pgTx struct{ tx pgx.Tx }

// ---- products ----

func (t *pgTx) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, price, status, stock, updated_at
		FROM products WHERE id=$1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Status, &p.Stock, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, classify(err, "get product "+id)
	}
	return p, nil
}

func (t *pgTx) UpsertProduct(ctx context.Context, p domain.Product) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO products(id, name, price, status, stock, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (id) DO UPDATE
		SET name=EXCLUDED.name, price=EXCLUDED.price, status=EXCLUDED.status,
		    stock=EXCLUDED.stock, updated_at=NOW()`,
		p.ID, p.Name, p.Price, p.Status, p.Stock)
	return classify(err, "upsert product")
}

// ---- inventory ----

const inventoryCols = `product_id, total_stock, available_stock, reserved_stock, updated_at`

func scanInventory(row pgx.Row) (domain.Inventory, error) {
	var inv domain.Inventory
	err := row.Scan(&inv.ProductID, &inv.TotalStock, &inv.AvailableStock, &inv.ReservedStock, &inv.UpdatedAt)
	return inv, err
}

func (t *pgTx) CreateInventory(ctx context.Context, inv domain.Inventory) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory(product_id, total_stock, available_stock, reserved_stock)
		VALUES ($1,$2,$3,$4)`,
		inv.ProductID, inv.TotalStock, inv.AvailableStock, inv.ReservedStock)
	return classify(err, "create inventory "+inv.ProductID)
}

func (t *pgTx) GetInventory(ctx context.Context, productID string) (domain.Inventory, error) {
	inv, err := scanInventory(t.tx.QueryRow(ctx,
		`SELECT `+inventoryCols+` FROM inventory WHERE product_id=$1`, productID))
	if err != nil {
		return inv, classify(err, "get inventory "+productID)
	}
	return inv, nil
}

// LockInventory takes the row lock until the transaction ends.
func (t *pgTx) LockInventory(ctx context.Context, productID string) (domain.Inventory, error) {
	inv, err := scanInventory(t.tx.QueryRow(ctx,
		`SELECT `+inventoryCols+` FROM inventory WHERE product_id=$1 FOR UPDATE`, productID))
	if err != nil {
		return inv, classify(err, "lock inventory "+productID)
	}
	return inv, nil
}

func (t *pgTx) UpdateInventory(ctx context.Context, inv domain.Inventory) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE inventory
		SET total_stock=$2, available_stock=$3, reserved_stock=$4, updated_at=NOW()
		WHERE product_id=$1`,
		inv.ProductID, inv.TotalStock, inv.AvailableStock, inv.ReservedStock)
	if err != nil {
		return classify(err, "update inventory "+inv.ProductID)
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("inventory for product %s not found", inv.ProductID)
	}
	return nil
}

// ---- carts ----

func (t *pgTx) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	c := &domain.Cart{}
	err := t.tx.QueryRow(ctx, `SELECT id, user_id, created_at FROM carts WHERE user_id=$1`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt)
	if err != nil {
		return nil, classify(err, "get cart for user "+userID)
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, cart_id, product_id, quantity, unit_price
		FROM cart_items WHERE cart_id=$1 ORDER BY created_at, id`, c.ID)
	if err != nil {
		return nil, classify(err, "list cart items")
	}
	defer rows.Close()

	c.Items = []domain.CartItem{}
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, classify(err, "scan cart item")
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list cart items")
	}
	return c, nil
}

func (t *pgTx) CreateCart(ctx context.Context, c *domain.Cart) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO carts(id, user_id, created_at) VALUES ($1,$2,$3)`,
		c.ID, c.UserID, c.CreatedAt)
	return classify(err, "create cart")
}

func (t *pgTx) AddCartItem(ctx context.Context, it domain.CartItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cart_items(id, cart_id, product_id, quantity, unit_price)
		VALUES ($1,$2,$3,$4,$5)`,
		it.ID, it.CartID, it.ProductID, it.Quantity, it.UnitPrice)
	return classify(err, "add cart item")
}

func (t *pgTx) UpdateCartItem(ctx context.Context, it domain.CartItem) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE cart_items SET quantity=$3, unit_price=$4
		WHERE id=$1 AND cart_id=$2`,
		it.ID, it.CartID, it.Quantity, it.UnitPrice)
	if err != nil {
		return classify(err, "update cart item")
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("cart item %s not found", it.ID)
	}
	return nil
}

func (t *pgTx) DeleteCartItems(ctx context.Context, cartID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1 AND id = ANY($2)`, cartID, itemIDs)
	return classify(err, "delete cart items")
}

// ---- orders ----

const orderCols = `id, user_id, total_items, subtotal, tax, discount, grand_total, status,
	shipping_address, payment_method, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.TotalItems, &o.Subtotal, &o.Tax, &o.Discount, &o.GrandTotal,
		&status, &o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(`+orderCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.UserID, o.TotalItems, o.Subtotal, o.Tax, o.Discount, o.GrandTotal, string(o.Status),
		o.ShippingAddress, o.PaymentMethod, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return classify(err, "insert order")
	}

	if len(o.Items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(id, order_id, product_id, product_name, unit_price, quantity, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, it.LineTotal)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return classify(err, "insert order items")
	}
	return nil
}

func (t *pgTx) loadItems(ctx context.Context, orders ...*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
		o.Items = []domain.OrderItem{}
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, line_total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, product_id`, ids)
	if err != nil {
		return classify(err, "list order items")
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity, &it.LineTotal); err != nil {
			return classify(err, "scan order item")
		}
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return classify(rows.Err(), "list order items")
}

func (t *pgTx) getOrder(ctx context.Context, id, suffix string) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`+suffix, id))
	if err != nil {
		return nil, classify(err, "get order "+id)
	}
	if err := t.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return t.getOrder(ctx, id, "")
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	return t.getOrder(ctx, id, " FOR UPDATE")
}

func (t *pgTx) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, classify(err, "list orders")
	}
	var ptrs []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, classify(err, "scan order")
		}
		ptrs = append(ptrs, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list orders")
	}
	if err := t.loadItems(ctx, ptrs...); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(ptrs))
	for _, o := range ptrs {
		out = append(out, *o)
	}
	return out, nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return classify(err, "update order status")
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("order %s not found", id)
	}
	return nil
}

// ---- payments ----

const paymentCols = `id, order_id, user_id, gateway_order_id, COALESCE(gateway_payment_id, ''),
	COALESCE(gateway_signature, ''), amount, currency, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	var status string
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.GatewayOrderID, &p.GatewayPaymentID,
		&p.GatewaySignature, &p.Amount, &p.Currency, &status, &p.CreatedAt, &p.UpdatedAt)
	p.Status = domain.PaymentStatus(status)
	return p, err
}

func (t *pgTx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments(id, order_id, user_id, gateway_order_id, amount, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.OrderID, p.UserID, p.GatewayOrderID, p.Amount, p.Currency, string(p.Status), p.CreatedAt, p.UpdatedAt)
	return classify(err, "insert payment")
}

func (t *pgTx) findPayment(ctx context.Context, op, where string, args ...any) (*domain.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE `+where+` ORDER BY created_at DESC LIMIT 1`, args...))
	if err != nil {
		return nil, classify(err, op)
	}
	return p, nil
}

func (t *pgTx) FindPendingPayment(ctx context.Context, orderID, userID string) (*domain.Payment, error) {
	return t.findPayment(ctx, "find pending payment",
		`order_id=$1 AND user_id=$2 AND status='PENDING'`, orderID, userID)
}

func (t *pgTx) FindPaymentBySession(ctx context.Context, orderID, userID, gatewayOrderID string) (*domain.Payment, error) {
	return t.findPayment(ctx, "find payment by session",
		`order_id=$1 AND user_id=$2 AND gateway_order_id=$3`, orderID, userID, gatewayOrderID)
}

func (t *pgTx) FindPaymentByCapture(ctx context.Context, orderID, gatewayPaymentID string) (*domain.Payment, error) {
	return t.findPayment(ctx, "find payment by capture",
		`order_id=$1 AND gateway_payment_id=$2`, orderID, gatewayPaymentID)
}

func (t *pgTx) FindPaymentByGatewayOrder(ctx context.Context, gatewayOrderID string) (*domain.Payment, error) {
	return t.findPayment(ctx, "find payment by gateway order", `gateway_order_id=$1`, gatewayOrderID)
}

func (t *pgTx) MarkPaymentFailed(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE payments SET status='FAILED', updated_at=NOW()
		WHERE id=$1 AND status<>'SUCCESS'`, id)
	if err != nil {
		return classify(err, "mark payment failed")
	}
	if ct.RowsAffected() != 1 {
		return apperr.Conflict("payment %s already captured or missing", id)
	}
	return nil
}

// CapturePayment is a compare-and-set from PENDING; the unique
// (order_id, gateway_payment_id) constraint rejects a second capture row.
func (t *pgTx) CapturePayment(ctx context.Context, id, gatewayPaymentID, signature string) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE payments
		SET gateway_payment_id=$2, gateway_signature=$3, status='SUCCESS', updated_at=NOW()
		WHERE id=$1 AND status='PENDING'`, id, gatewayPaymentID, signature)
	if err != nil {
		return classify(err, "capture payment")
	}
	if ct.RowsAffected() != 1 {
		return apperr.Conflict("payment %s is no longer pending", id)
	}
	return nil
}
