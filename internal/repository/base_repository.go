package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"interview_room/internal/storage"
)

// baseRepository 提供各 repository 共用的條件式寫入
type baseRepository struct {
	db *storage.PostgresDB
}

func (r *baseRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *baseRepository) create(ctx context.Context, model interface{}) error {
	return translate(r.conn(ctx).Create(model).Error)
}

func (r *baseRepository) first(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return translate(r.conn(ctx).Where(query, args...).First(dest).Error)
}

// saveIf 整筆寫回，但只在目前狀態屬於 from 時成功；from 為空時不檢查狀態。
// omit 中的欄位由其他原子操作維護，不會被覆蓋
func (r *baseRepository) saveIf(ctx context.Context, model interface{}, id uuid.UUID, from []string, omit ...string) (bool, error) {
	tx := r.conn(ctx).Model(model).Where("id = ?", id)
	if len(from) > 0 {
		tx = tx.Where("status IN ?", from)
	}
	res := tx.Select("*").Omit(append([]string{"id", "created_at"}, omit...)...).Updates(model)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
