package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RoomSettings 房間的功能開關，取代任意 JSON 設定欄位
type RoomSettings struct {
	RecordingEnabled      bool `gorm:"not null" json:"recording_enabled"`
	ChatEnabled           bool `gorm:"not null" json:"chat_enabled"`
	WaitingRoomEnabled    bool `gorm:"not null" json:"waiting_room_enabled"`
	GuestApprovalRequired bool `gorm:"not null" json:"guest_approval_required"`
}

// RequiresApproval 回報非主持人加入時是否要先進等候室
func (s RoomSettings) RequiresApproval() bool {
	return s.GuestApprovalRequired && s.WaitingRoomEnabled
}

// RoomSettingsPatch 只覆蓋有帶值的欄位
type RoomSettingsPatch struct {
	RecordingEnabled      *bool `json:"recording_enabled,omitempty"`
	ChatEnabled           *bool `json:"chat_enabled,omitempty"`
	WaitingRoomEnabled    *bool `json:"waiting_room_enabled,omitempty"`
	GuestApprovalRequired *bool `json:"guest_approval_required,omitempty"`
}

// Apply 把 patch 疊加到 base 上
func (p RoomSettingsPatch) Apply(base RoomSettings) RoomSettings {
	out := base
	if p.RecordingEnabled != nil {
		out.RecordingEnabled = *p.RecordingEnabled
	}
	if p.ChatEnabled != nil {
		out.ChatEnabled = *p.ChatEnabled
	}
	if p.WaitingRoomEnabled != nil {
		out.WaitingRoomEnabled = *p.WaitingRoomEnabled
	}
	if p.GuestApprovalRequired != nil {
		out.GuestApprovalRequired = *p.GuestApprovalRequired
	}
	return out
}

// DecodeRoomSettingsPatch 解析設定 JSON，不認得的 key 直接拒絕
func DecodeRoomSettingsPatch(raw []byte) (RoomSettingsPatch, error) {
	var patch RoomSettingsPatch
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return patch, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return RoomSettingsPatch{}, fmt.Errorf("invalid room settings: %w", err)
	}
	return patch, nil
}
