package data

import "github.com/khaledhikmat/vs-verdict/model"

type IService interface {
	NewError(err interface{}) error
	NewSourceStats(stats model.SourceStats) error
	NewBatcherStats(stats model.BatcherStats) error
	NewScorerStats(stats model.ScorerStats) error
	NewRunStats(stats model.RunStats) error

	RetrieveRunStats() ([]model.RunStats, error)
}
