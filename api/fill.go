// Copyright (c) 2023 BVK Chaitanya

package api

const (
	BuyPath  = "/buy"
	SellPath = "/sell"
)

// FillRequest fills a standing order. Buy fills a sell order and sell fills
// a buy order.
type FillRequest struct {
	OrderID Number `json:"orderId"`
}

type FillResponse struct {
	Success            bool   `json:"success"`
	TxID               string `json:"txId"`
	OrderID            uint64 `json:"orderId"`
	Buyer              string `json:"buyer"`
	Seller             string `json:"seller"`
	BuyerTokenAccount  string `json:"buyerTokenAccount"`
	SellerTokenAccount string `json:"sellerTokenAccount"`
	Price              uint64 `json:"price"`
	Amount             uint64 `json:"amount"`
}

func (r *FillRequest) Check() error {
	return checkID("orderId", r.OrderID)
}
