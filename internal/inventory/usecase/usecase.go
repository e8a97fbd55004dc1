package usecase

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/cache"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/lock"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/search"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	IndexName        = "stock_items"
	ListCachePattern = "stock_items:list:*"
	listCacheTTL     = 5 * time.Minute
)

const indexMapping = `{
	"mappings": {
		"properties": {
			"sku": { "type": "keyword" },
			"ean": { "type": "keyword" },
			"title": { "type": "text" },
			"category": { "type": "keyword" },
			"quantity": { "type": "integer" },
			"is_composite": { "type": "boolean" },
			"created_at": { "type": "date" }
		}
	}
}`

type inventoryUseCase struct {
	repo   inventory.Repository
	locker lock.Locker
	cache  *cache.RedisClient
	es     *search.Client
	logger logger.ZapLogger
}

// NewInventoryUseCase builds the item store. locker, cache and es are optional. When set, locker
// must be the one stock movements lock items with.
func NewInventoryUseCase(repo inventory.Repository, locker lock.Locker, cache *cache.RedisClient, es *search.Client, log logger.ZapLogger) inventory.UseCase {
	return &inventoryUseCase{
		repo:   repo,
		locker: locker,
		cache:  cache,
		es:     es,
		logger: log,
	}
}

// EnsureIndex creates the search index when Elasticsearch is configured.
func EnsureIndex(ctx context.Context, es *search.Client) error {
	if es == nil {
		return nil
	}
	return es.CreateIndex(ctx, IndexName, indexMapping)
}

func (uc *inventoryUseCase) CreateItem(ctx context.Context, input *dto.CreateItemInput) (*model.StockItem, error) {
	sku := strings.TrimSpace(input.SKU)
	title := strings.TrimSpace(input.Title)
	if sku == "" || title == "" {
		return nil, fmt.Errorf("%w: sku and title are required", inventory.ErrInvalidItem)
	}
	if input.Quantity < 0 || input.MinQuantity < 0 {
		return nil, fmt.Errorf("%w: quantities must not be negative", inventory.ErrInvalidItem)
	}

	if err := uc.checkUnique(ctx, sku, input.EAN, ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &model.StockItem{
		BaseModel:    model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		SKU:          sku,
		EAN:          optional(input.EAN),
		Title:        title,
		Quantity:     input.Quantity,
		MinQuantity:  input.MinQuantity,
		MaxQuantity:  input.MaxQuantity,
		Location:     optional(input.Location),
		Category:     optional(input.Category),
		Supplier:     optional(input.Supplier),
		CostPrice:    input.CostPrice,
		SellingPrice: input.SellingPrice,
		Notes:        optional(input.Notes),
		IsComposite:  input.IsComposite,
	}

	if err := uc.repo.Create(ctx, item); err != nil {
		return nil, err
	}

	uc.InvalidateListCache(ctx)
	go uc.syncToElastic(context.Background(), item)

	return item, nil
}

func (uc *inventoryUseCase) checkUnique(ctx context.Context, sku, ean, excludeID string) error {
	unique, err := uc.repo.IsSKUUnique(ctx, sku, excludeID)
	if err != nil {
		return err
	}
	if !unique {
		return fmt.Errorf("%w: sku %q already exists", inventory.ErrConflict, sku)
	}

	if ean = strings.TrimSpace(ean); ean != "" {
		unique, err := uc.repo.IsEANUnique(ctx, ean, excludeID)
		if err != nil {
			return err
		}
		if !unique {
			return fmt.Errorf("%w: ean %q already exists", inventory.ErrConflict, ean)
		}
	}
	return nil
}

func (uc *inventoryUseCase) GetItem(ctx context.Context, id string) (*model.StockItem, error) {
	item, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, inventory.ErrNotFound
	}
	return item, nil
}

func (uc *inventoryUseCase) GetItemBySKU(ctx context.Context, sku string) (*model.StockItem, error) {
	item, err := uc.repo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, inventory.ErrNotFound
	}
	return item, nil
}

func (uc *inventoryUseCase) ListItems(ctx context.Context, filters *dto.ItemFilters) (*dto.ItemList, error) {
	filters.Normalize()

	if uc.es != nil && filters.Search != "" && !filters.QuantityFiltered() {
		list, err := uc.searchElastic(ctx, filters)
		if err == nil {
			return list, nil
		}
		uc.logger.Error("ES search failed, falling back to DB", zap.Error(err))
	}

	cacheKey := ""
	if filters.Search == "" && uc.cache != nil {
		if key, err := generateCacheKey(filters); err == nil {
			cacheKey = key
			if val, err := uc.cache.Client.Get(ctx, cacheKey).Result(); err == nil {
				var cached dto.ItemList
				if err := json.Unmarshal([]byte(val), &cached); err == nil {
					return &cached, nil
				}
			}
		}
	}

	items, filtered, err := uc.repo.FindAll(ctx, filters)
	if err != nil {
		return nil, err
	}
	total, err := uc.repo.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	list := &dto.ItemList{Items: items, Total: total, TotalFiltered: filtered}

	if cacheKey != "" {
		if data, err := json.Marshal(list); err == nil {
			if err := uc.cache.Client.Set(ctx, cacheKey, data, listCacheTTL).Err(); err != nil {
				uc.logger.Warn("failed to cache item list", zap.Error(err))
			}
		}
	}
	return list, nil
}

// searchElastic finds matching ids in the index and loads the rows from the database. Movements
// never re-index items, so the index is only asked about text and category, never quantity.
func (uc *inventoryUseCase) searchElastic(ctx context.Context, f *dto.ItemFilters) (*dto.ItemList, error) {
	must := []map[string]interface{}{
		{
			"query_string": map[string]interface{}{
				"query":  fmt.Sprintf("*%s*", f.Search),
				"fields": []string{"title^3", "sku", "ean"},
			},
		},
	}
	if f.Category != "" {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"category": f.Category}})
	}

	q := map[string]interface{}{
		"query":   map[string]interface{}{"bool": map[string]interface{}{"must": must}},
		"from":    f.Offset,
		"size":    f.Limit,
		"_source": false,
	}
	res, err := uc.es.Search(ctx, IndexName, q)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	items, err := uc.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	total, err := uc.repo.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.ItemList{Items: items, Total: total, TotalFiltered: res.Hits.Total.Value}, nil
}

func generateCacheKey(filters *dto.ItemFilters) (string, error) {
	data, err := json.Marshal(filters)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("stock_items:list:%x", md5.Sum(data)), nil
}

func (uc *inventoryUseCase) InvalidateListCache(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.DeletePattern(ctx, ListCachePattern); err != nil {
		uc.logger.Warn("failed to invalidate item list cache", zap.Error(err))
	}
}

func (uc *inventoryUseCase) syncToElastic(ctx context.Context, item *model.StockItem) {
	if uc.es == nil {
		return
	}
	if err := uc.es.Index(ctx, IndexName, item.ID, item); err != nil {
		uc.logger.Error("failed to index stock item", zap.String("item_id", item.ID), zap.Error(err))
	}
}

func (uc *inventoryUseCase) UpdateItem(ctx context.Context, input *dto.UpdateItemInput) (*model.StockItem, error) {
	// is_composite decides how movements expand, so the flag never flips under one in flight.
	if uc.locker != nil {
		unlock, err := uc.locker.Lock(ctx, []string{input.ID})
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	item, err := uc.GetItem(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	sku := strings.TrimSpace(input.SKU)
	title := strings.TrimSpace(input.Title)
	if sku == "" || title == "" {
		return nil, fmt.Errorf("%w: sku and title are required", inventory.ErrInvalidItem)
	}
	if input.MinQuantity < 0 {
		return nil, fmt.Errorf("%w: min_quantity must not be negative", inventory.ErrInvalidItem)
	}

	newEAN := strings.TrimSpace(input.EAN)
	oldEAN := ""
	if item.EAN != nil {
		oldEAN = *item.EAN
	}
	checkEAN := ""
	if newEAN != oldEAN {
		checkEAN = newEAN
	}
	if sku != item.SKU || checkEAN != "" {
		if err := uc.checkUnique(ctx, sku, checkEAN, item.ID); err != nil {
			return nil, err
		}
	}

	if input.IsComposite != nil && !*input.IsComposite && item.IsComposite {
		edges, err := uc.repo.CountEdges(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if edges > 0 {
			return nil, fmt.Errorf("%w: item still has %d component(s)", inventory.ErrConflict, edges)
		}
	}

	item.SKU = sku
	item.Title = title
	item.EAN = optional(newEAN)
	item.MinQuantity = input.MinQuantity
	item.MaxQuantity = input.MaxQuantity
	item.Location = optional(input.Location)
	item.Category = optional(input.Category)
	item.Supplier = optional(input.Supplier)
	item.CostPrice = input.CostPrice
	item.SellingPrice = input.SellingPrice
	item.Notes = optional(input.Notes)
	if input.IsComposite != nil {
		item.IsComposite = *input.IsComposite
	}
	item.UpdatedAt = time.Now().UTC()

	if err := uc.repo.Update(ctx, item); err != nil {
		return nil, err
	}

	uc.InvalidateListCache(ctx)
	go uc.syncToElastic(context.Background(), item)

	return item, nil
}

func (uc *inventoryUseCase) DeleteItem(ctx context.Context, id string) error {
	if _, err := uc.GetItem(ctx, id); err != nil {
		return err
	}

	if err := uc.repo.Delete(ctx, id); err != nil {
		return err
	}

	uc.InvalidateListCache(ctx)
	if uc.es != nil {
		go func() {
			if err := uc.es.Delete(context.Background(), IndexName, id); err != nil {
				uc.logger.Error("failed to delete stock item from ES", zap.Error(err))
			}
		}()
	}
	return nil
}

func (uc *inventoryUseCase) Stats(ctx context.Context) (*model.InventoryStats, error) {
	return uc.repo.Stats(ctx)
}

func (uc *inventoryUseCase) LowStockReport(ctx context.Context) ([]model.StockItem, error) {
	return uc.repo.LowStock(ctx)
}

func (uc *inventoryUseCase) OutOfStockReport(ctx context.Context) ([]model.StockItem, error) {
	return uc.repo.OutOfStock(ctx)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
