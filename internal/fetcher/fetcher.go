// Package fetcher 负责抓取各论坛的RSS/Atom订阅源,并把条目归一化为统一结构。
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	userAgent      = "ForumMonitor/0.1 (+https://example.com)"
	defaultTimeout = 15 * time.Second
)

// ErrUnsupportedSource 订阅指向了未注册的来源
var ErrUnsupportedSource = errors.New("unsupported source")

// FetchError 网络失败、非200响应或文档解析失败
type FetchError struct {
	Source  string
	FeedURL string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s feed %s: %v", e.Source, e.FeedURL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Entry 归一化后的候选条目。UID为空表示条目既无guid也无链接,无法锚定身份。
type Entry struct {
	Title       string
	Content     string
	Link        string
	UID         string
	PublishedAt time.Time
}

type fetchFunc func(ctx context.Context, feedURL string) ([]Entry, error)

// Fetcher 按来源标识分发到对应抓取器
type Fetcher struct {
	parser  *gofeed.Parser
	client  *http.Client
	sources map[string]fetchFunc
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	f := &Fetcher{
		parser: gofeed.NewParser(),
		client: &http.Client{Timeout: timeout},
	}
	f.sources = map[string]fetchFunc{
		"v2ex":     f.fetchV2EX,
		"nodeseek": f.fetchNodeSeek,
		"linux.do": f.fetchLinuxDo,
	}
	return f
}

// Sources 返回已注册的来源标识,按字典序
func (f *Fetcher) Sources() []string {
	names := make([]string, 0, len(f.sources))
	for name := range f.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supported 判断来源是否有已注册的抓取器
func (f *Fetcher) Supported(source string) bool {
	_, ok := f.sources[strings.ToLower(source)]
	return ok
}

// Fetch 按来源分发抓取。未注册的来源直接失败,不发起任何网络请求。
func (f *Fetcher) Fetch(ctx context.Context, source, feedURL string) ([]Entry, error) {
	fn, ok := f.sources[strings.ToLower(source)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	}
	return fn(ctx, feedURL)
}

func (f *Fetcher) fetchV2EX(ctx context.Context, feedURL string) ([]Entry, error) {
	return f.fetchGeneric(ctx, "v2ex", feedURL)
}

func (f *Fetcher) fetchNodeSeek(ctx context.Context, feedURL string) ([]Entry, error) {
	return f.fetchGeneric(ctx, "nodeseek", feedURL)
}

func (f *Fetcher) fetchLinuxDo(ctx context.Context, feedURL string) ([]Entry, error) {
	return f.fetchGeneric(ctx, "linux.do", feedURL)
}

// fetchGeneric 抓取并解析订阅源。只做取数和归一化,不做过滤、去重或持久化。
func (f *Fetcher) fetchGeneric(ctx context.Context, source, feedURL string) ([]Entry, error) {
	feed, err := f.parseFeed(ctx, feedURL)
	if err != nil {
		return nil, &FetchError{Source: source, FeedURL: feedURL, Err: err}
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, normalizeItem(source, item))
	}
	return entries, nil
}

func (f *Fetcher) parseFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return f.parser.Parse(resp.Body)
}

// normalizeItem 将gofeed条目归一化为Entry,总是成功。
// 标识键优先取guid,其次取链接;链接缺失时回退到guid。
func normalizeItem(source string, item *gofeed.Item) Entry {
	link := item.Link
	if link == "" {
		link = item.GUID
	}

	var uid string
	switch {
	case item.GUID != "":
		uid = source + ":" + item.GUID
	case link != "":
		uid = source + ":" + link
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	// 发布时间按 published → updated → 当前时间 回退,只影响展示排序,不影响身份
	published := time.Now()
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	return Entry{
		Title:       item.Title,
		Content:     content,
		Link:        link,
		UID:         uid,
		PublishedAt: published,
	}
}
