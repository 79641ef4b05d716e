package model

import (
	"time"

	"gorm.io/gorm"
)

// TrialRecord 单次试验的执行记录（供调试与失败归因）
type TrialRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	RunID      uint   `gorm:"not null;index" json:"run_id"`
	TrialIndex int    `gorm:"index" json:"trial_index"`
	// succeeded/convergence_failed/invocation_failed/timeout
	Status   string `gorm:"type:varchar(30);index" json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `gorm:"type:text" json:"error"`

	ElapsedMs int64 `json:"elapsed_ms"`
}
