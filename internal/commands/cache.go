package commands

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type CacheItem struct {
	ChartData []byte
	Caption   string
}

var resultCache = gocache.New(5*time.Minute, 10*time.Minute)

func cacheGet(key string) (*CacheItem, bool) {
	if v, found := resultCache.Get(key); found {
		return v.(*CacheItem), true
	}
	return nil, false
}

func cacheSet(key string, chartData []byte, caption string, duration time.Duration) {
	resultCache.Set(key, &CacheItem{ChartData: chartData, Caption: caption}, duration)
}
