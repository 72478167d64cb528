package types

import (
	"gorm.io/datatypes"
)

type HackClubhouseProgress struct {
	SingularCore
	Complete bool           `gorm:"not null"`
	Quest    string         `gorm:"not null"`
	Pathways datatypes.JSON `gorm:"type:jsonb;not null"`
	Progress float64        `gorm:"not null"`
}

func (HackClubhouseProgress) TableName() string { return "hack_clubhouse_progress" }

type HackClubhouseMode struct {
	SingularCore
	Active bool `gorm:"not null"`
}

func (HackClubhouseMode) TableName() string { return "hack_clubhouse_mode" }

type HackClubhouseNewsQuestLink struct {
	SingularCore
	Character string `gorm:"not null"`
	Quest     string `gorm:"not null"`
}

func (HackClubhouseNewsQuestLink) TableName() string { return "hack_clubhouse_news_quest_link" }

type HackClubhouseChangePage struct {
	SingularCore
	Page string `gorm:"not null"`
}

func (HackClubhouseChangePage) TableName() string { return "hack_clubhouse_change_page" }

type HackClubhouseAchievement struct {
	SingularCore
	AchievementID   string `gorm:"not null"`
	AchievementName string `gorm:"not null"`
}

func (HackClubhouseAchievement) TableName() string { return "hack_clubhouse_achievement" }

type HackClubhouseAchievementPoints struct {
	SingularCore
	Skillset  string `gorm:"not null"`
	Points    int32  `gorm:"not null"`
	NewPoints int32  `gorm:"not null"`
}

func (HackClubhouseAchievementPoints) TableName() string { return "hack_clubhouse_achievement_points" }
