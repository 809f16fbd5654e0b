package monitor

import "time"

type Status struct {
	Directory  bool      `json:"directory"`
	Redis      bool      `json:"redis"`
	DocStore   bool      `json:"docstore"`
	OutboxSize int       `json:"outbox_size"`
	LastCheck  time.Time `json:"last_check"`
}
