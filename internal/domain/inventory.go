package domain

// ReserveRequest — заявка на временный резерв склада под заказ.
type ReserveRequest struct {
	OrderID     string
	ProductCode string
	Quantity    int
	BuyerRef    string
}

// InventoryAck — ответ склада на reserve/release.
type InventoryAck struct {
	OK      bool
	Message string
}

// FulfillmentItem — одна выданная единица товара (например, данные аккаунта).
type FulfillmentItem struct {
	Fields map[string]string
}

// Fulfillment — результат списания резерва.
type Fulfillment struct {
	OK bool
	// Items пусты, если выдачу делает администратор вручную.
	Items        []FulfillmentItem
	AfterMessage string
	Message      string
}
