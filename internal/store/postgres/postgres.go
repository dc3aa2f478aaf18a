package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokoserba/backend/internal/domain"
	"tokoserba/backend/internal/pricing"
	"tokoserba/backend/internal/store"
	"tokoserba/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id              text PRIMARY KEY,
			name            text NOT NULL,
			category        text NOT NULL,
			barcode         text UNIQUE,
			purchase_price  double precision NOT NULL,
			retail_price    double precision NOT NULL,
			wholesale_price double precision NOT NULL,
			quantity        double precision NOT NULL CHECK (quantity >= 0),
			expiry_date     timestamptz,
			batch_number    text,
			created_at      timestamptz NOT NULL DEFAULT now(),
			updated_at      timestamptz NOT NULL DEFAULT now(),
			deleted_at      timestamptz
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id         text PRIMARY KEY,
			name       text NOT NULL,
			shop_name  text,
			phone      text NOT NULL,
			category   text NOT NULL,
			balance    double precision NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id           text PRIMARY KEY,
			date         timestamptz NOT NULL DEFAULT now(),
			sale_type    text NOT NULL,
			total_amount double precision NOT NULL,
			customer_id  text REFERENCES customers(id)
		)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id            text PRIMARY KEY,
			sale_id       text NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			product_id    text NOT NULL REFERENCES products(id),
			quantity      double precision NOT NULL,
			selling_price double precision NOT NULL,
			profit        double precision NOT NULL,
			total         double precision NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id          text PRIMARY KEY,
			date        timestamptz NOT NULL DEFAULT now(),
			amount      double precision NOT NULL CHECK (amount > 0),
			customer_id text NOT NULL REFERENCES customers(id),
			notes       text NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS saved_products (
			id          text PRIMARY KEY,
			customer_id text NOT NULL REFERENCES customers(id),
			product_id  text NOT NULL REFERENCES products(id),
			quantity    double precision NOT NULL DEFAULT 1,
			created_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id            text PRIMARY KEY,
			name          text NOT NULL,
			email         text NOT NULL UNIQUE,
			password_hash text NOT NULL,
			role          text NOT NULL,
			created_at    timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales (customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_date ON sales (date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_product ON sale_items (product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_customer ON payments (customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_saved_products_customer ON saved_products (customer_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const productColumns = `id, name, category, barcode, purchase_price, retail_price, wholesale_price,
	quantity, expiry_date, batch_number, created_at, updated_at, deleted_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var barcode, batchNumber sql.NullString
	var expiry, deleted sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Category, &barcode, &p.PurchasePrice, &p.RetailPrice,
		&p.WholesalePrice, &p.Quantity, &expiry, &batchNumber, &p.CreatedAt, &p.UpdatedAt, &deleted)
	if err != nil {
		return domain.Product{}, err
	}
	if barcode.Valid {
		p.Barcode = &barcode.String
	}
	if batchNumber.Valid {
		p.BatchNumber = &batchNumber.String
	}
	if expiry.Valid {
		t := expiry.Time
		p.ExpiryDate = &t
	}
	if deleted.Valid {
		t := deleted.Time
		p.DeletedAt = &t
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, barcode, purchase_price, retail_price,
			wholesale_price, quantity, expiry_date, batch_number, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.Name, product.Category, nullStringPtr(product.Barcode),
		product.PurchasePrice, product.RetailPrice, product.WholesalePrice, product.Quantity,
		nullTimePtr(product.ExpiryDate), nullStringPtr(product.BatchNumber),
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("barcode: %w", store.ErrDuplicate)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, barcode = $4, purchase_price = $5, retail_price = $6,
			wholesale_price = $7, quantity = $8, expiry_date = $9, batch_number = $10, updated_at = $11
		WHERE id = $1 AND deleted_at IS NULL
	`, product.ID, product.Name, product.Category, nullStringPtr(product.Barcode),
		product.PurchasePrice, product.RetailPrice, product.WholesalePrice, product.Quantity,
		nullTimePtr(product.ExpiryDate), nullStringPtr(product.BatchNumber), product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("barcode: %w", store.ErrDuplicate)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("product %s: %w", product.ID, store.ErrNotFound)
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT true FROM products WHERE id = $1 AND deleted_at IS NULL FOR UPDATE
	`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		return false, err
	}

	var referenced bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id = $1)
	`, id).Scan(&referenced)
	if err != nil {
		return false, err
	}

	if referenced {
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET deleted_at = now(), updated_at = now() WHERE id = $1
		`, id)
		if err != nil {
			return false, err
		}
		return true, tx.Commit()
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM saved_products WHERE product_id = $1`, id); err != nil {
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		// A sale item written between the check and the delete shows up as a
		// foreign key violation; report it the same way as the explicit check.
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("product %s: %w", id, store.ErrProductHasSales)
		}
		return false, err
	}
	return false, tx.Commit()
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("sale needs at least one item: %w", store.ErrInvalidInput)
	}
	for _, line := range sale.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be positive: %w", store.ErrInvalidInput)
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := uniqueProductIDs(sale.Items)

	// Lock every product row for the duration of the transaction so two
	// concurrent sales cannot both pass the stock check on stale reads.
	rows, err := tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1) AND deleted_at IS NULL
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		productMap[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	working := make(map[string]float64, len(ids))
	items := make([]domain.SaleItem, 0, len(sale.Items))
	totalAmount := 0.0

	for _, line := range sale.Items {
		product, ok := productMap[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}

		available, tracked := working[line.ProductID]
		if !tracked {
			available = product.Quantity
		}
		if available < line.Quantity {
			return nil, fmt.Errorf("%w for %s (requested %g, available %g)",
				store.ErrInsufficientStock, product.Name, line.Quantity, available)
		}
		working[line.ProductID] = available - line.Quantity

		quote := pricing.QuoteLine(product, sale.SaleType, line.Quantity)
		totalAmount += quote.LineTotal
		snapshot := product
		items = append(items, domain.SaleItem{
			ID:           xid.New("item"),
			ProductID:    line.ProductID,
			Product:      &snapshot,
			Quantity:     line.Quantity,
			SellingPrice: quote.UnitPrice,
			Profit:       quote.LineProfit,
			Total:        quote.LineTotal,
		})
	}

	for productID, remaining := range working {
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = $2, updated_at = now() WHERE id = $1
		`, productID, remaining)
		if err != nil {
			return nil, err
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	sale.TotalAmount = totalAmount

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, date, sale_type, total_amount, customer_id)
		VALUES ($1,$2,$3,$4,$5)
	`, sale.ID, sale.Date, string(sale.SaleType), sale.TotalAmount, nullStringPtr(sale.CustomerID))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("customer %s: %w", deref(sale.CustomerID), store.ErrNotFound)
		}
		return nil, err
	}

	for i := range items {
		items[i].SaleID = sale.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, quantity, selling_price, profit, total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, items[i].ID, items[i].SaleID, items[i].ProductID, items[i].Quantity,
			items[i].SellingPrice, items[i].Profit, items[i].Total)
		if err != nil {
			return nil, err
		}
	}
	sale.Items = items

	if sale.CustomerID != nil && sale.SaleType == domain.SaleTypeWholesale {
		res, err := tx.ExecContext(ctx, `
			UPDATE customers SET balance = balance + $2 WHERE id = $1
		`, *sale.CustomerID, totalAmount)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("customer %s: %w", *sale.CustomerID, store.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if sale.CustomerID != nil {
		if customer, err := s.GetCustomer(ctx, *sale.CustomerID); err == nil {
			sale.Customer = customer
		}
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT id, date, sale_type, total_amount, customer_id
		FROM sales
		ORDER BY date DESC
	`)
}

func (s *Store) ListSalesByCustomer(ctx context.Context, customerID string) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT id, date, sale_type, total_amount, customer_id
		FROM sales
		WHERE customer_id = $1
		ORDER BY date DESC
	`, customerID)
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var saleType string
		var customerID sql.NullString
		if err := rows.Scan(&sale.ID, &sale.Date, &saleType, &sale.TotalAmount, &customerID); err != nil {
			return nil, err
		}
		sale.SaleType = domain.SaleType(saleType)
		if customerID.Valid {
			sale.CustomerID = &customerID.String
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := s.loadSaleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items

		if sales[i].CustomerID != nil {
			customer, err := s.GetCustomer(ctx, *sales[i].CustomerID)
			if err == nil {
				sales[i].Customer = customer
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
	}
	return sales, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, si.quantity, si.selling_price, si.profit, si.total,
			`+prefixedProductColumns("p")+`
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = $1
		ORDER BY si.id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		var p domain.Product
		var barcode, batchNumber sql.NullString
		var expiry, deleted sql.NullTime
		err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity,
			&item.SellingPrice, &item.Profit, &item.Total,
			&p.ID, &p.Name, &p.Category, &barcode, &p.PurchasePrice, &p.RetailPrice,
			&p.WholesalePrice, &p.Quantity, &expiry, &batchNumber, &p.CreatedAt, &p.UpdatedAt, &deleted)
		if err != nil {
			return nil, err
		}
		if barcode.Valid {
			p.Barcode = &barcode.String
		}
		if batchNumber.Valid {
			p.BatchNumber = &batchNumber.String
		}
		if expiry.Valid {
			t := expiry.Time
			p.ExpiryDate = &t
		}
		if deleted.Valid {
			t := deleted.Time
			p.DeletedAt = &t
		}
		item.Product = &p
		items = append(items, item)
	}
	return items, rows.Err()
}

func prefixedProductColumns(alias string) string {
	return alias + `.id, ` + alias + `.name, ` + alias + `.category, ` + alias + `.barcode, ` +
		alias + `.purchase_price, ` + alias + `.retail_price, ` + alias + `.wholesale_price, ` +
		alias + `.quantity, ` + alias + `.expiry_date, ` + alias + `.batch_number, ` +
		alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.deleted_at`
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, shop_name, phone, category, balance, created_at
		FROM customers
		ORDER BY lower(name) ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var c domain.Customer
	var shopName sql.NullString
	err := row.Scan(&c.ID, &c.Name, &shopName, &c.Phone, &c.Category, &c.Balance, &c.CreatedAt)
	if err != nil {
		return domain.Customer{}, err
	}
	if shopName.Valid {
		c.ShopName = &shopName.String
	}
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, shop_name, phone, category, balance, created_at
		FROM customers
		WHERE id = $1
	`, id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, shop_name, phone, category, balance, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, customer.ID, customer.Name, nullStringPtr(customer.ShopName), customer.Phone,
		customer.Category, customer.Balance, customer.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, shop_name = $3, phone = $4, category = $5
		WHERE id = $1
	`, customer.ID, customer.Name, nullStringPtr(customer.ShopName), customer.Phone, customer.Category)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("customer %s: %w", customer.ID, store.ErrNotFound)
	}
	return s.GetCustomer(ctx, customer.ID)
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM saved_products WHERE customer_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE customer_id = $1`, id); err != nil {
		return err
	}
	// Sales history survives with the customer reference detached.
	if _, err := tx.ExecContext(ctx, `UPDATE sales SET customer_id = NULL WHERE customer_id = $1`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	return tx.Commit()
}

func (s *Store) RecordPayment(ctx context.Context, customerID string, amount float64, notes string) (*domain.Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive: %w", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var balance float64
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM customers WHERE id = $1 FOR UPDATE
	`, customerID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
		}
		return nil, err
	}
	if amount > balance {
		return nil, fmt.Errorf("%w (paid %g, due %g)", store.ErrInsufficientBalance, amount, balance)
	}

	payment := domain.Payment{
		ID:         xid.New("pay"),
		Date:       time.Now().UTC(),
		Amount:     amount,
		CustomerID: customerID,
		Notes:      notes,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, date, amount, customer_id, notes)
		VALUES ($1,$2,$3,$4,$5)
	`, payment.ID, payment.Date, payment.Amount, payment.CustomerID, payment.Notes)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE customers SET balance = balance - $2 WHERE id = $1
	`, customerID, amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Store) ListPaymentsByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, amount, customer_id, notes
		FROM payments
		WHERE customer_id = $1
		ORDER BY date DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 32)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.Date, &p.Amount, &p.CustomerID, &p.Notes); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) ListSavedProducts(ctx context.Context, customerID string) ([]domain.SavedProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.id, sp.customer_id, sp.product_id, sp.quantity, sp.created_at,
			`+prefixedProductColumns("p")+`
		FROM saved_products sp
		JOIN products p ON p.id = sp.product_id
		WHERE sp.customer_id = $1
		ORDER BY sp.created_at ASC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	saved := make([]domain.SavedProduct, 0, 16)
	for rows.Next() {
		var sp domain.SavedProduct
		var p domain.Product
		var barcode, batchNumber sql.NullString
		var expiry, deleted sql.NullTime
		err := rows.Scan(&sp.ID, &sp.CustomerID, &sp.ProductID, &sp.Quantity, &sp.CreatedAt,
			&p.ID, &p.Name, &p.Category, &barcode, &p.PurchasePrice, &p.RetailPrice,
			&p.WholesalePrice, &p.Quantity, &expiry, &batchNumber, &p.CreatedAt, &p.UpdatedAt, &deleted)
		if err != nil {
			return nil, err
		}
		if barcode.Valid {
			p.Barcode = &barcode.String
		}
		if batchNumber.Valid {
			p.BatchNumber = &batchNumber.String
		}
		if expiry.Valid {
			t := expiry.Time
			p.ExpiryDate = &t
		}
		if deleted.Valid {
			t := deleted.Time
			p.DeletedAt = &t
		}
		sp.Product = &p
		saved = append(saved, sp)
	}
	return saved, rows.Err()
}

func (s *Store) AddSavedProduct(ctx context.Context, saved domain.SavedProduct) (*domain.SavedProduct, error) {
	if saved.ID == "" {
		saved.ID = xid.New("saved")
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now().UTC()
	}
	if saved.Quantity <= 0 {
		saved.Quantity = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_products (id, customer_id, product_id, quantity, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, saved.ID, saved.CustomerID, saved.ProductID, saved.Quantity, saved.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("customer or product: %w", store.ErrNotFound)
		}
		return nil, err
	}

	created := saved
	return &created, nil
}

func (s *Store) RemoveSavedProduct(ctx context.Context, savedID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_products WHERE id = $1`, savedID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("saved product %s: %w", savedID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) GetDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats

	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE quantity <= 10),
			count(*) FILTER (WHERE expiry_date IS NOT NULL AND expiry_date <= now() + interval '30 days')
		FROM products
		WHERE deleted_at IS NULL
	`).Scan(&stats.TotalProducts, &stats.LowStockProducts, &stats.ExpiringSoon)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(sum(total_amount) FILTER (WHERE sale_type = 'RETAIL'), 0),
			COALESCE(sum(total_amount) FILTER (WHERE sale_type = 'WHOLESALE'), 0),
			COALESCE(sum(total_amount) FILTER (WHERE date >= date_trunc('day', now())), 0)
		FROM sales
	`).Scan(&stats.TotalSalesRetail, &stats.TotalSalesWholesale, &stats.TodaySales)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(sum(si.profit), 0),
			COALESCE(sum(si.profit) FILTER (WHERE s.date >= date_trunc('day', now())), 0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
	`).Scan(&stats.TotalProfit, &stats.TodayProfit)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	return stats, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", user.Email, store.ErrDuplicate)
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	return s.findUser(ctx, "email", email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	return s.findUser(ctx, "id", id)
}

func (s *Store) findUser(ctx context.Context, column string, value string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users
		WHERE `+column+` = $1
	`, value).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", value, store.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id string, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&count)
	return count, err
}

func uniqueProductIDs(items []domain.SaleItem) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

func nullStringPtr(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullTimePtr(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
