// Package middleware 提供了 HTTP 請求處理的中間件。
//
// 包含 JWT 身份驗證、服務間回呼的共用密鑰檢查、公開端點的 IP 限流，
// 以及以 zap 記錄的請求日誌。
package middleware
