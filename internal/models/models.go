package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains result-set metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
}

// Item is one row of the inventory table.
type Item struct {
	ID         int64  `json:"id"`
	ItemName   string `json:"item_name"`
	ItemCode   string `json:"item_code"`
	Category   string `json:"category"`
	TotalStock int    `json:"total_stock"`
	CreatedAt  string `json:"created_at"`
}

// RequestEntry is one append-only row of the request log.
type RequestEntry struct {
	ID                int64  `json:"id"`
	ItemCode          string `json:"item_code"`
	ItemName          string `json:"item_name"`
	QuantityRequested int    `json:"quantity_requested"`
	RequestDate       string `json:"request_date"`
	Requester         string `json:"requester"`
}

// Payload is the JSON record carried by a label's QR code.
type Payload struct {
	ItemName   string `json:"item_name"`
	ItemCode   string `json:"item_code"`
	InitialQty int    `json:"initial_qty"`
}

// InvoiceLine is one entry of an invoice draft.
type InvoiceLine struct {
	ItemName string `json:"item_name"`
	ItemCode string `json:"item_code"`
	Qty      int    `json:"qty"`
}
