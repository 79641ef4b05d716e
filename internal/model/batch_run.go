package model

import (
	"time"

	"gorm.io/gorm"
)

// BatchRun 每次蒙特卡洛批次运行的元数据（用于隔离与可复现）
type BatchRun struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	SolutionID string `gorm:"type:varchar(100);not null;index" json:"solution_id"`
	Database   string `gorm:"type:varchar(100);not null;index" json:"database"`
	Trials     int    `json:"trials"`
	Seed       int64  `gorm:"index" json:"seed"`

	// 批次终态：COMPLETED/PARTIALLY_FAILED/CANCELLED/FAILED
	Status    string `gorm:"type:varchar(20);index" json:"status"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`

	// 输入组成快照（JSON），便于复现
	CompositionJSON string `gorm:"type:text" json:"composition_json"`

	// 结果/报告文件路径
	ResultPath string `gorm:"type:varchar(500)" json:"result_path"`
	ReportPath string `gorm:"type:varchar(500)" json:"report_path"`
}
