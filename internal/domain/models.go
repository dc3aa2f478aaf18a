package domain

import "time"

type SaleType string

const (
	SaleTypeRetail    SaleType = "RETAIL"
	SaleTypeWholesale SaleType = "WHOLESALE"
)

const (
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
)

const (
	CustomerCategoryRegular   = "REGULAR"
	CustomerCategoryWholesale = "WHOLESALE"
	CustomerCategoryVIP       = "VIP"
)

type Product struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	Barcode        *string    `json:"barcode,omitempty"`
	PurchasePrice  float64    `json:"purchase_price"`
	RetailPrice    float64    `json:"retail_price"`
	WholesalePrice float64    `json:"wholesale_price"`
	Quantity       float64    `json:"quantity"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	BatchNumber    *string    `json:"batch_number,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the product has been soft-deleted. Soft-deleted
// products stay in storage for historical joins but are excluded from the
// catalog and from new sales.
func (p Product) Deleted() bool {
	return p.DeletedAt != nil
}

type ProductCreateRequest struct {
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Barcode        *string `json:"barcode,omitempty"`
	PurchasePrice  float64 `json:"purchase_price"`
	RetailPrice    float64 `json:"retail_price"`
	WholesalePrice float64 `json:"wholesale_price"`
	Quantity       float64 `json:"quantity"`
	ExpiryDate     *string `json:"expiry_date,omitempty"`
	BatchNumber    *string `json:"batch_number,omitempty"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ShopName  *string   `json:"shop_name,omitempty"`
	Phone     string    `json:"phone"`
	Category  string    `json:"category"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name     string  `json:"name"`
	ShopName *string `json:"shop_name,omitempty"`
	Phone    string  `json:"phone"`
	Category string  `json:"category"`
}

type CustomerUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	ShopName *string `json:"shop_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Category *string `json:"category,omitempty"`
}

type SaleItem struct {
	ID           string   `json:"id"`
	SaleID       string   `json:"sale_id"`
	ProductID    string   `json:"product_id"`
	Product      *Product `json:"product,omitempty"`
	Quantity     float64  `json:"quantity"`
	SellingPrice float64  `json:"selling_price"`
	Profit       float64  `json:"profit"`
	Total        float64  `json:"total"`
}

type Sale struct {
	ID          string     `json:"id"`
	Date        time.Time  `json:"date"`
	SaleType    SaleType   `json:"sale_type"`
	TotalAmount float64    `json:"total_amount"`
	CustomerID  *string    `json:"customer_id,omitempty"`
	Customer    *Customer  `json:"customer,omitempty"`
	Items       []SaleItem `json:"items"`
}

type SaleLineRequest struct {
	ProductID string  `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

type SaleCreateRequest struct {
	SaleType   SaleType          `json:"sale_type"`
	CustomerID *string           `json:"customer_id,omitempty"`
	Items      []SaleLineRequest `json:"items"`
}

type Payment struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Amount     float64   `json:"amount"`
	CustomerID string    `json:"customer_id"`
	Notes      string    `json:"notes,omitempty"`
}

type PaymentRequest struct {
	Amount float64 `json:"amount"`
}

type SavedProduct struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	ProductID  string    `json:"product_id"`
	Product    *Product  `json:"product,omitempty"`
	Quantity   float64   `json:"quantity"`
	CreatedAt  time.Time `json:"created_at"`
}

type SavedProductRequest struct {
	ProductID string  `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

const (
	LedgerEntrySale    = "SALE"
	LedgerEntryPayment = "PAYMENT"
)

// LedgerEntry is one movement on a customer statement: a debit (sale on
// credit) or a credit (payment received), distinguished by Type.
type LedgerEntry struct {
	ID          string       `json:"id"`
	Date        time.Time    `json:"date"`
	Type        string       `json:"type"`
	Description string       `json:"description"`
	Amount      float64      `json:"amount"`
	Items       []LedgerItem `json:"items"`
}

type LedgerItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Total    float64 `json:"total"`
}

type LedgerResponse struct {
	Customer Customer      `json:"customer"`
	Ledger   []LedgerEntry `json:"ledger"`
}

type DashboardStats struct {
	TotalProducts       int     `json:"total_products"`
	LowStockProducts    int     `json:"low_stock_products"`
	ExpiringSoon        int     `json:"expiring_soon"`
	TotalSalesRetail    float64 `json:"total_sales_retail"`
	TotalSalesWholesale float64 `json:"total_sales_wholesale"`
	TotalProfit         float64 `json:"total_profit"`
	TodaySales          float64 `json:"today_sales"`
	TodayProfit         float64 `json:"today_profit"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type AuthUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	ExpiresAt   string   `json:"expires_at"`
	User        AuthUser `json:"user"`
}

type Actor struct {
	UserID string
	Role   string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}
