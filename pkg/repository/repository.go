package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a generic repository interface
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*T, error)
	FindAll(ctx context.Context) ([]*T, error)
}

// PaginatedResult represents a paginated query result
type PaginatedResult[T any] struct {
	Items      []*T  `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

// Pagination represents pagination parameters
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Filter represents a query filter
type Filter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"` // eq, ne, gt, gte, lt, lte, like, in
	Value    interface{} `json:"value"`
}

// Sort represents a sort order
type Sort struct {
	Field string `json:"field"`
	Order string `json:"order"` // asc, desc
}

// QueryOptions represents query options
type QueryOptions struct {
	Pagination *Pagination `json:"pagination"`
	Filters    []Filter    `json:"filters"`
	Sorts      []Sort      `json:"sorts"`
}

// NewPagination creates pagination with defaults
func NewPagination(page, pageSize int) *Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return &Pagination{
		Page:     page,
		PageSize: pageSize,
	}
}

// Offset returns the offset for the pagination
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// NewPaginatedResult creates a new paginated result
func NewPaginatedResult[T any](items []*T, total int64, pagination *Pagination) *PaginatedResult[T] {
	totalPages := int(total) / pagination.PageSize
	if int(total)%pagination.PageSize > 0 {
		totalPages++
	}

	return &PaginatedResult[T]{
		Items:      items,
		Total:      total,
		Page:       pagination.Page,
		PageSize:   pagination.PageSize,
		TotalPages: totalPages,
	}
}

// GormRepository is a generic gorm.DB-backed Repository[T], the same shape
// as the pack's hand-written per-entity Gorm repositories (e.g. an API key
// repository) but parameterized so a single implementation can back any
// entity with a string ID column.
type GormRepository[T any] struct {
	db *gorm.DB
}

func NewGormRepository[T any](db *gorm.DB) *GormRepository[T] {
	return &GormRepository[T]{db: db}
}

func (r *GormRepository[T]) Create(ctx context.Context, entity *T) error {
	return r.db.WithContext(ctx).Create(entity).Error
}

func (r *GormRepository[T]) Update(ctx context.Context, entity *T) error {
	return r.db.WithContext(ctx).Save(entity).Error
}

// Upsert inserts entity, or overwrites every column of the existing row with
// the same primary key. Unlike Update/Save, it does not require the row to
// already exist.
func (r *GormRepository[T]) Upsert(ctx context.Context, entity *T) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(entity).Error
}

func (r *GormRepository[T]) Delete(ctx context.Context, id string) error {
	var zero T
	return r.db.WithContext(ctx).Delete(&zero, "id = ?", id).Error
}

func (r *GormRepository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	var entity T
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *GormRepository[T]) FindAll(ctx context.Context) ([]*T, error) {
	var entities []*T
	if err := r.db.WithContext(ctx).Find(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

// FindPage runs FindAll's query under QueryOptions' pagination, returning a
// PaginatedResult alongside the total row count.
func (r *GormRepository[T]) FindPage(ctx context.Context, opts QueryOptions) (*PaginatedResult[T], error) {
	pagination := opts.Pagination
	if pagination == nil {
		pagination = NewPagination(1, 20)
	}

	q := r.db.WithContext(ctx)
	for _, f := range opts.Filters {
		switch f.Operator {
		case "like":
			q = q.Where(f.Field+" LIKE ?", f.Value)
		case "in":
			q = q.Where(f.Field+" IN ?", f.Value)
		case "gt":
			q = q.Where(f.Field+" > ?", f.Value)
		case "gte":
			q = q.Where(f.Field+" >= ?", f.Value)
		case "lt":
			q = q.Where(f.Field+" < ?", f.Value)
		case "lte":
			q = q.Where(f.Field+" <= ?", f.Value)
		case "ne":
			q = q.Where(f.Field+" != ?", f.Value)
		default:
			q = q.Where(f.Field+" = ?", f.Value)
		}
	}
	for _, s := range opts.Sorts {
		q = q.Order(s.Field + " " + s.Order)
	}

	var zero T
	var total int64
	if err := q.Model(&zero).Count(&total).Error; err != nil {
		return nil, err
	}

	var entities []*T
	if err := q.Offset(pagination.Offset()).Limit(pagination.PageSize).Find(&entities).Error; err != nil {
		return nil, err
	}

	return NewPaginatedResult(entities, total, pagination), nil
}

func (r *GormRepository[T]) Migrate() error {
	var zero T
	return r.db.AutoMigrate(&zero)
}
