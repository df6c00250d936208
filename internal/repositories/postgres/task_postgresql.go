package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/altius-academy/activity-service/internal/cache"
	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/repositories"
)

type TaskPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewTaskPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.TaskRepository {
	return &TaskPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (t *TaskPostgreSQL) Create(ctx context.Context, tx *gorm.DB, task *models.GradeTask) error {
	db := t.getDB(tx)
	return translateError(db.WithContext(ctx).Create(task).Error, "failed to create task")
}

func (t *TaskPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.GradeTask, error) {
	db := t.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var task models.GradeTask

	err := t.cacheManager.Task.CacheOrExecute(ctx, cacheKey, &task, cache.TaskCacheConfig.TTL, func() (interface{}, error) {
		var dbTask models.GradeTask
		if err := db.WithContext(ctx).First(&dbTask, id).Error; err != nil {
			return nil, translateError(err, "failed to get task %d", id)
		}
		return &dbTask, nil
	})
	if err != nil {
		return nil, err
	}

	return &task, nil
}

func (t *TaskPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.TaskStatus) error {
	db := t.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.GradeTask{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return translateError(result.Error, "failed to update task %d status", id)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %d: %w", id, repositories.ErrNotFound)
	}

	cache.InvalidateTaskCache(ctx, t.cacheManager, id)
	return nil
}

func (t *TaskPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return t.db
}
