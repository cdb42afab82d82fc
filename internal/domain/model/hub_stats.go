package model

import "time"

type HubStats struct {
	OnlineUsers  int           `json:"online_users"`
	Uptime       time.Duration `json:"uptime"`
	Delivered    uint64        `json:"delivered"`
	DroppedLocal uint64        `json:"dropped_local"`
}
