package store

import (
	"context"
	"fmt"
	"time"

	"tunnel-panel/internal/models"
)

func (s *Store) ListTunnels(ctx context.Context) ([]models.Tunnel, error) {
	var tunnels []models.Tunnel
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&tunnels).Error; err != nil {
		return nil, fmt.Errorf("list tunnels: %w", err)
	}
	return tunnels, nil
}

func (s *Store) GetTunnel(ctx context.Context, id string) (*models.Tunnel, error) {
	var t models.Tunnel
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

// ListTunnelsByNode returns tunnels bound to a node, optionally filtered by core
func (s *Store) ListTunnelsByNode(ctx context.Context, nodeID string, core string) ([]models.Tunnel, error) {
	var tunnels []models.Tunnel
	q := s.db.WithContext(ctx).Where("node_id = ?", nodeID)
	if core != "" {
		q = q.Where("core = ?", core)
	}
	if err := q.Order("created_at asc").Find(&tunnels).Error; err != nil {
		return nil, fmt.Errorf("list tunnels of node %s: %w", nodeID, err)
	}
	return tunnels, nil
}

func (s *Store) CreateTunnel(ctx context.Context, t *models.Tunnel) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create tunnel: %w", err)
	}
	return nil
}

/**
 * Persist an edited tunnel if nobody changed it meanwhile
 * @param {*models.Tunnel} t - Tunnel carrying the new revision
 * @param {int64} expected - Revision the edit was based on
 * @returns {error} ErrRevisionConflict when the stored revision moved, ErrNotFound when deleted
 * @description
 * - status and error_message belong to SetTunnelStatus and are left as stored
 */
func (s *Store) UpdateTunnel(ctx context.Context, t *models.Tunnel, expected int64) error {
	t.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(&models.Tunnel{}).
		Where("id = ? AND revision = ?", t.ID, expected).
		Updates(map[string]interface{}{
			"name":       t.Name,
			"type":       t.Type,
			"spec":       t.Spec,
			"revision":   t.Revision,
			"updated_at": t.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update tunnel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetTunnel(ctx, t.ID); err != nil {
			return err
		}
		return ErrRevisionConflict
	}
	return nil
}

// SetTunnelStatus records backend state without touching the revision
func (s *Store) SetTunnelStatus(ctx context.Context, id string, status models.RunStatus, errMsg *string) error {
	res := s.db.WithContext(ctx).Model(&models.Tunnel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update tunnel status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTunnel(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Tunnel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete tunnel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
