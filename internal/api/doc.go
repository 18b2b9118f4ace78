// Package api 處理 HTTP 請求路由和處理。
//
// 路由分成三組：以邀請碼存取的公開端點（限流）、需要 Bearer token 的主持人與參與者端點，
// 以及媒體服務和錄影管線使用共用密鑰呼叫的 hooks。handlers 只做請求解析與錯誤轉換，
// 狀態規則都在 service 層。
package api
