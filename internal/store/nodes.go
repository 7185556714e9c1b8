package store

import (
	"context"
	"fmt"
	"time"

	"tunnel-panel/internal/models"
)

func (s *Store) ListNodes(ctx context.Context) ([]models.Node, error) {
	var nodes []models.Node
	if err := s.db.WithContext(ctx).Order("name asc").Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

func (s *Store) GetNode(ctx context.Context, id string) (*models.Node, error) {
	var n models.Node
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &n, nil
}

// CreateNode fails with ErrDuplicate when the name is taken
func (s *Store) CreateNode(ctx context.Context, n *models.Node) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Node{}).Where("name = ?", n.Name).Count(&count).Error; err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: node %q", ErrDuplicate, n.Name)
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	return nil
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Node{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete node: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchNode records a heartbeat
func (s *Store) TouchNode(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Node{}).Where("id = ?", id).
		Updates(map[string]interface{}{"last_seen": at, "updated_at": at})
	if res.Error != nil {
		return fmt.Errorf("touch node: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
