package models

import (
	"math"
	"strings"
	"time"
)

// InventoryTxn представляет складскую транзакцию (приход, выдачу, возврат)
type InventoryTxn struct {
	ID     string    `json:"id,omitempty"`
	ItemID string    `json:"itemId"`
	Type   string    `json:"type"`
	Qty    float64   `json:"qty"`
	At     time.Time `json:"txnDate"`
}

// Validate проверяет обязательные поля транзакции
func (t InventoryTxn) Validate() error {
	switch {
	case strings.TrimSpace(t.ItemID) == "":
		return invalid("inventory txn", "itemId is empty")
	case t.At.IsZero():
		return invalid("inventory txn", "txnDate is missing")
	case math.IsNaN(t.Qty) || math.IsInf(t.Qty, 0):
		return invalid("inventory txn", "qty is not finite")
	}
	return nil
}

// InventoryTxnBatch представляет пакет транзакций
type InventoryTxnBatch struct {
	Txns []InventoryTxn `json:"txns"`
}

// ConsumptionRecord суммарный расход позиции за календарный день (UTC)
type ConsumptionRecord struct {
	ItemID   string    `json:"itemId"`
	Date     time.Time `json:"date"`
	Quantity float64   `json:"quantity"`
}

// Validate проверяет запись дневного расхода
func (c ConsumptionRecord) Validate() error {
	switch {
	case strings.TrimSpace(c.ItemID) == "":
		return invalid("consumption", "itemId is empty")
	case c.Date.IsZero():
		return invalid("consumption", "date is missing")
	case !nonNegative(c.Quantity):
		return invalid("consumption", "quantity must be a non-negative number")
	}
	return nil
}

// ItemMaster справочные данные складской позиции.
// Остаток может прийти в любом из полей onHand, stock, qty, quantity.
type ItemMaster struct {
	ID           string   `json:"id"`
	Code         string   `json:"code,omitempty"`
	Name         string   `json:"name,omitempty"`
	OnHand       *float64 `json:"onHand,omitempty"`
	Stock        *float64 `json:"stock,omitempty"`
	Qty          *float64 `json:"qty,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
	LeadTimeDays *float64 `json:"leadTimeDays,omitempty"`
}

// OnHandQty возвращает первое заданное значение остатка или 0
func (it ItemMaster) OnHandQty() float64 {
	for _, v := range []*float64{it.OnHand, it.Stock, it.Qty, it.Quantity} {
		if v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
			return *v
		}
	}
	return 0
}

// ItemBatch представляет пакет справочных данных
type ItemBatch struct {
	Items []ItemMaster `json:"items"`
}
