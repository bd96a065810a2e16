package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiebiao/elibrary/internal/domain/book"
	apperrors "github.com/xiebiao/elibrary/pkg/errors"
)

// CatalogCache 书目详情缓存（Cache-Aside模式）
// 设计说明：
// 1. 书目详情读多写少，缓存命中可避开热门书的详情页查库
// 2. Key设计：book:detail:{book_id}，TTL 10分钟
// 3. 写路径（借还书、登记副本）在事务提交后删除缓存，不更新缓存
//    （删除比更新简单且不会写入过期数据）
// 4. AvailableCopies会随借还频繁变化，详情页允许短暂陈旧
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCatalogCache 创建书目缓存
func NewCatalogCache(client *redis.Client) *CatalogCache {
	return &CatalogCache{
		client: client,
		ttl:    10 * time.Minute,
	}
}

func (c *CatalogCache) key(bookID uint) string {
	return fmt.Sprintf("book:detail:%d", bookID)
}

// GetBook 读取缓存的书目详情
// 缓存未命中返回(nil, nil)，调用方回源数据库
func (c *CatalogCache) GetBook(ctx context.Context, bookID uint) (*book.Book, error) {
	data, err := c.client.Get(ctx, c.key(bookID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 缓存未命中
		}
		return nil, apperrors.Wrap(err, "读取书目缓存失败")
	}

	var b book.Book
	if err := json.Unmarshal(data, &b); err != nil {
		// 缓存数据损坏,当作未命中并删除
		c.client.Del(ctx, c.key(bookID))
		return nil, nil
	}

	return &b, nil
}

// SetBook 写入书目详情缓存
func (c *CatalogCache) SetBook(ctx context.Context, b *book.Book) error {
	data, err := json.Marshal(b)
	if err != nil {
		return apperrors.Wrap(err, "序列化书目失败")
	}

	if err := c.client.Set(ctx, c.key(b.ID), data, c.ttl).Err(); err != nil {
		return apperrors.Wrap(err, "写入书目缓存失败")
	}

	return nil
}

// InvalidateBook 删除书目详情缓存
// 借出/归还/登记副本等改变可借册数的操作在事务提交后调用
func (c *CatalogCache) InvalidateBook(ctx context.Context, bookID uint) error {
	if err := c.client.Del(ctx, c.key(bookID)).Err(); err != nil {
		return apperrors.Wrap(err, "删除书目缓存失败")
	}
	return nil
}
