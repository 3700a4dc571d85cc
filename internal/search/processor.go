package search

import (
	"github.com/Khandelwalgov/AskPro/internal/config"
	"github.com/Khandelwalgov/AskPro/internal/models"
)

// ProcessQuery validates the query and applies the configured k limits.
func ProcessQuery(query *models.Query, cfg config.RetrievalConfig) error {
	return query.Validate(cfg.DefaultK, cfg.MaxK)
}
