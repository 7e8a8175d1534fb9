package utils

import (
	"context"
	"strings"
)

const (
	MsgKeyUdhaarLimitBreach  = "udhaar_limit_breach"
	MsgKeyLowStockWarn       = "low_stock_warn"
	MsgKeyInsufficientStock  = "insufficient_stock"
	MsgKeyItemNotInInventory = "item_not_in_inventory"
	MsgKeyUdhaarNotFound     = "udhaar_not_found"
)

var defaultMessages = map[string]map[string]string{
	"en": {
		MsgKeyUdhaarLimitBreach:  "Customer's credit limit exceeded for this sale.",
		MsgKeyLowStockWarn:       "⚠️ Low stock: {item}",
		MsgKeyInsufficientStock:  "Insufficient stock for {item}, deduction pending (please update inventory).",
		MsgKeyItemNotInInventory: "Item not in inventory, stock deduction is pending.",
		MsgKeyUdhaarNotFound:     "No open udhaar sale found.",
	},
	// add other languages here, e.g. "hi", "mr"
}

// GetMessage resolves a message key for the given language, falling back to
// English, then to the key itself. args are {placeholder} substitutions.
func GetMessage(key string, lang string, args map[string]string) string {
	msgs, ok := defaultMessages[lang]
	if !ok {
		msgs = defaultMessages["en"]
	}
	txt, ok := msgs[key]
	if !ok {
		txt = defaultMessages["en"][key]
	}
	if txt == "" {
		return key
	}
	for k, v := range args {
		txt = strings.ReplaceAll(txt, "{"+k+"}", v)
	}
	return txt
}

// GetMessageFromContext uses the request's language from context.
func GetMessageFromContext(ctx context.Context, key string, args map[string]string) string {
	lang, _ := GetLanguageFromContext(ctx)
	return GetMessage(key, lang, args)
}
