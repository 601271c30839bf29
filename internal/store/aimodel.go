package store

import (
	"database/sql"
	"time"

	"github.com/eduplatform/examd/internal/model"
)

// InsertAIModel stores an AI model descriptor.
func (s *Store) InsertAIModel(m model.AIModel) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO ai_models (name, api_key, model_identifier, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.Name, m.APIKey, m.ModelIdentifier, m.IsActive, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetAIModel returns a model descriptor by ID, or nil when absent.
// Inactive descriptors are returned like any other; there is no
// activity gate on lookup.
func (s *Store) GetAIModel(id int64) (*model.AIModel, error) {
	var m model.AIModel
	err := s.db.QueryRow(
		`SELECT id, name, api_key, model_identifier, is_active, created_at
		 FROM ai_models WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.APIKey, &m.ModelIdentifier, &m.IsActive, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListAIModels returns all model descriptors.
func (s *Store) ListAIModels() ([]model.AIModel, error) {
	rows, err := s.db.Query(
		`SELECT id, name, api_key, model_identifier, is_active, created_at FROM ai_models ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var models []model.AIModel
	for rows.Next() {
		var m model.AIModel
		if err := rows.Scan(&m.ID, &m.Name, &m.APIKey, &m.ModelIdentifier, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}
