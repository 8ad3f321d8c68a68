package transport

import "github.com/google/uuid"

type AddItemRequest struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity *int `json:"quantity"`
}

type GuestLine struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

type SyncRequest struct {
	Items []GuestLine `json:"items"`
}

type CartLine struct {
	ItemID          uuid.UUID `json:"item_id"`
	VariantID       uuid.UUID `json:"variant_id"`
	ProductID       uuid.UUID `json:"product_id"`
	ProductName     string    `json:"product_name"`
	ProductSlug     string    `json:"product_slug"`
	ImageURL        string    `json:"image_url,omitempty"`
	SKU             string    `json:"sku"`
	Size            string    `json:"size,omitempty"`
	Color           string    `json:"color,omitempty"`
	Stock           *int      `json:"stock"`
	BasePrice       string    `json:"base_price"`
	DiscountPercent string    `json:"discount_percent"`
	SalePrice       string    `json:"sale_price"`
	Quantity        int       `json:"quantity"`
	LineTotal       string    `json:"line_total"`
}

type CartResponse struct {
	CartID        uuid.UUID  `json:"cart_id"`
	Items         []CartLine `json:"items"`
	Subtotal      string     `json:"subtotal"`
	DiscountTotal string     `json:"discount_total"`
	TotalPayable  string     `json:"total_payable"`
}

type ItemResponse struct {
	ItemID    uuid.UUID `json:"item_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Deleted   bool      `json:"deleted"`
}

type SkippedLine struct {
	VariantID uuid.UUID `json:"variant_id"`
	Reason    string    `json:"reason"`
}

type SyncResponse struct {
	Merged  []uuid.UUID   `json:"merged"`
	Skipped []SkippedLine `json:"skipped"`
	Cart    CartResponse  `json:"cart"`
}
