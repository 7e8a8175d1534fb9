package models

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodUpi    PaymentMethod = "UPI"
	PaymentMethodCredit PaymentMethod = "CREDIT"
)

var AllPaymentMethod = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodUpi,
	PaymentMethodCredit,
}

func (e PaymentMethod) IsValid() bool {
	switch e {
	case PaymentMethodCash, PaymentMethodUpi, PaymentMethodCredit:
		return true
	}
	return false
}

func (e PaymentMethod) String() string {
	return string(e)
}

// StockDisposition records how the inventory side of a sale was resolved.
type StockDisposition string

const (
	StockDispositionDeducted         StockDisposition = "DEDUCTED"
	StockDispositionLowStockWarning  StockDisposition = "LOW_STOCK_WARNING"
	StockDispositionPendingDeduction StockDisposition = "PENDING_DEDUCTION"
	StockDispositionItemUnknown      StockDisposition = "ITEM_UNKNOWN"
)

var AllStockDisposition = []StockDisposition{
	StockDispositionDeducted,
	StockDispositionLowStockWarning,
	StockDispositionPendingDeduction,
	StockDispositionItemUnknown,
}

func (e StockDisposition) IsValid() bool {
	switch e {
	case StockDispositionDeducted, StockDispositionLowStockWarning,
		StockDispositionPendingDeduction, StockDispositionItemUnknown:
		return true
	}
	return false
}

func (e StockDisposition) String() string {
	return string(e)
}

// SaleReferenceType identifies which entity an outbox event refers to.
type SaleReferenceType string

const (
	SaleReferenceTypeSale          SaleReferenceType = "SL"
	SaleReferenceTypeInventoryItem SaleReferenceType = "IT"
	SaleReferenceTypeCreditAccount SaleReferenceType = "CL"
	SaleReferenceTypePending       SaleReferenceType = "PD"
)

type SaleEventAction string

const (
	SaleEventActionCreate SaleEventAction = "C"
	SaleEventActionUpdate SaleEventAction = "U"
	SaleEventActionDelete SaleEventAction = "D"
)
