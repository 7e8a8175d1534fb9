package utils

import (
	"context"

	"github.com/dukaanhq/sales_backend/appctx"
)

var (
	ContextKeyTenantId        = appctx.ContextKeyTenantId
	ContextKeyEstablishmentId = appctx.ContextKeyEstablishmentId
	ContextKeyUserName        = appctx.ContextKeyUserName
	ContextKeyLanguage        = appctx.ContextKeyLanguage
	ContextKeyCorrelationId   = appctx.ContextKeyCorrelationId

	ContextKeyIsAdmin         = appctx.ContextKeyIsAdmin
	ContextKeySkipTenantScope = appctx.ContextKeySkipTenantScope
)

func GetTenantIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTenantId)
}

func GetEstablishmentIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyEstablishmentId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetLanguageFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyLanguage)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTenantIdInContext(ctx context.Context, tenantId string) context.Context {
	return appctx.Set(ctx, ContextKeyTenantId, tenantId)
}

func SetEstablishmentIdInContext(ctx context.Context, establishmentId string) context.Context {
	return appctx.Set(ctx, ContextKeyEstablishmentId, establishmentId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetLanguageInContext(ctx context.Context, lang string) context.Context {
	return appctx.Set(ctx, ContextKeyLanguage, lang)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetIsAdminFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsAdmin)
}

func SetIsAdminInContext(ctx context.Context, isAdmin bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsAdmin, isAdmin)
}

func GetSkipTenantScopeFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeySkipTenantScope)
}

func SetSkipTenantScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipTenantScope, skip)
}
