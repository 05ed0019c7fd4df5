package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"forum-monitor/internal/fetcher"
	"forum-monitor/internal/model"
)

const rustFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>V2EX</title>
    <link>https://www.v2ex.com</link>
    <description>way to explore</description>
    <item>
      <title>Rust 1.0 released</title>
      <link>https://www.v2ex.com/t/1001</link>
      <description>the rust team announces</description>
      <pubDate>Mon, 24 Aug 2026 08:00:00 +0800</pubDate>
    </item>
    <item>
      <title>Weather today</title>
      <link>https://www.v2ex.com/t/1002</link>
      <description>sunny everywhere</description>
      <pubDate>Mon, 24 Aug 2026 07:00:00 +0800</pubDate>
    </item>
  </channel>
</rss>`

const anchorlessFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>NodeSeek</title>
    <link>https://www.nodeseek.com</link>
    <description>forum</description>
    <item>
      <title>no link no guid</title>
      <description>nothing to anchor identity to</description>
    </item>
    <item>
      <title>a normal post</title>
      <link>https://www.nodeseek.com/post-1</link>
      <description>fine</description>
    </item>
  </channel>
</rss>`

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "monitor.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&model.Topic{}, &model.Post{}, &model.PushLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFeedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func createTopic(t *testing.T, db *gorm.DB, topic model.Topic) model.Topic {
	t.Helper()
	if err := db.Create(&topic).Error; err != nil {
		t.Fatalf("create topic: %v", err)
	}
	return topic
}

func TestRunCycleCreatesMatchingPosts(t *testing.T) {
	db := setupDB(t)
	srv := newFeedServer(t, rustFeed)

	createTopic(t, db, model.Topic{
		Name:     "rust watch",
		Source:   "v2ex",
		FeedURL:  srv.URL,
		Keywords: model.StringList{"rust"},
		IsActive: true,
	})

	svc := NewMonitorService(db, fetcher.New(5*time.Second), 1)
	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if report.TopicsChecked != 1 {
		t.Fatalf("expected 1 topic checked, got %d", report.TopicsChecked)
	}
	if report.EntriesFetched != 2 {
		t.Fatalf("expected 2 entries fetched, got %d", report.EntriesFetched)
	}
	if report.EntriesMatched != 1 {
		t.Fatalf("expected 1 entry matched, got %d", report.EntriesMatched)
	}
	if report.PostsCreated != 1 {
		t.Fatalf("expected 1 post created, got %d", report.PostsCreated)
	}
	if len(report.Failures) != 0 {
		t.Fatalf("expected no failures, got %v", report.Failures)
	}

	var posts []model.Post
	db.Find(&posts)
	if len(posts) != 1 {
		t.Fatalf("expected 1 post in store, got %d", len(posts))
	}
	if posts[0].Title != "Rust 1.0 released" {
		t.Fatalf("unexpected post title: %s", posts[0].Title)
	}
	if posts[0].UID != "v2ex:https://www.v2ex.com/t/1001" {
		t.Fatalf("unexpected uid: %s", posts[0].UID)
	}
	if posts[0].IsPushed {
		t.Fatal("expected is_pushed to be false at creation")
	}

	// 每个成功落库的帖子都有一条success日志
	var logs []model.PushLog
	db.Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected 1 push log, got %d", len(logs))
	}
	if logs[0].Status != model.PushStatusSuccess {
		t.Fatalf("unexpected log status: %s", logs[0].Status)
	}
	if logs[0].PostID != posts[0].ID {
		t.Fatalf("log references post %d, want %d", logs[0].PostID, posts[0].ID)
	}
}

func TestRunCycleIdempotent(t *testing.T) {
	db := setupDB(t)
	srv := newFeedServer(t, rustFeed)

	createTopic(t, db, model.Topic{
		Name:     "rust watch",
		Source:   "v2ex",
		FeedURL:  srv.URL,
		Keywords: model.StringList{"rust"},
		IsActive: true,
	})

	svc := NewMonitorService(db, fetcher.New(5*time.Second), 1)

	first, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	second, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if first.PostsCreated != 1 {
		t.Fatalf("first cycle created %d posts, want 1", first.PostsCreated)
	}
	if second.PostsCreated != 0 {
		t.Fatalf("second cycle created %d posts, want 0", second.PostsCreated)
	}
	if second.Duplicates != 1 {
		t.Fatalf("second cycle saw %d duplicates, want 1", second.Duplicates)
	}

	var count int64
	db.Model(&model.Post{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 post after two cycles, got %d", count)
	}

	var logCount int64
	db.Model(&model.PushLog{}).Count(&logCount)
	if logCount != 1 {
		t.Fatalf("expected 1 push log after two cycles, got %d", logCount)
	}
}

func TestRunCycleEmptyKeywordsMatchEverything(t *testing.T) {
	db := setupDB(t)
	srv := newFeedServer(t, rustFeed)

	createTopic(t, db, model.Topic{
		Name:     "everything",
		Source:   "v2ex",
		FeedURL:  srv.URL,
		IsActive: true,
	})

	svc := NewMonitorService(db, fetcher.New(5*time.Second), 1)
	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if report.PostsCreated != 2 {
		t.Fatalf("expected 2 posts created, got %d", report.PostsCreated)
	}
}

func TestRunCycleSkipsInactiveTopics(t *testing.T) {
	db := setupDB(t)
	srv := newFeedServer(t, rustFeed)

	createTopic(t, db, model.Topic{
		Name:     "disabled",
		Source:   "v2ex",
		FeedURL:  srv.URL,
		IsActive: false,
	})

	svc := NewMonitorService(db, fetcher.New(5*time.Second), 1)
	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if report.TopicsChecked != 0 {
		t.Fatalf("expected 0 topics checked, got %d", report.TopicsChecked)
	}
	var count int64
	db.Model(&model.Post{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no posts, got %d", count)
	}
}

func TestRunCycleDropsAnchorlessEntries(t *testing.T) {
	db := setupDB(t)
	srv := newFeedServer(t, anchorlessFeed)

	createTopic(t, db, model.Topic{
		Name:     "nodeseek all",
		Source:   "nodeseek",
		FeedURL:  srv.URL,
		IsActive: true,
	})

	svc := NewMonitorService(db, fetcher.New(5*time.Second), 1)
	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if report.EntriesFetched != 2 {
		t.Fatalf("expected 2 entries fetched, got %d", report.EntriesFetched)
	}
	// 无guid且无链接的条目被丢弃
	if report.PostsCreated != 1 {
		t.Fatalf("expected 1 post created, got %d", report.PostsCreated)
	}

	var post model.Post
	if err := db.First(&post).Error; err != nil {
		t.Fatalf("load post: %v", err)
	}
	if post.UID != "nodeseek:https://www.nodeseek.com/post-1" {
		t.Fatalf("unexpected uid: %s", post.UID)
	}
}

func TestRunCycleUnsupportedSource(t *testing.T) {
	db := setupDB(t)

	createTopic(t, db, model.Topic{
		Name:     "unknown source",
		Source:   "hackernews",
		FeedURL:  "http://127.0.0.1:0/feed",
		IsActive: true,
	})

	svc := NewMonitorService(db, fetcher.New(5*time.Second), 1)
	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle must not fail for unsupported source: %v", err)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
	if report.Failures[0].Topic != "unknown source" {
		t.Fatalf("unexpected failure topic: %s", report.Failures[0].Topic)
	}
	var count int64
	db.Model(&model.Post{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no posts, got %d", count)
	}
}

func TestRunCycleFetchFailureIsolation(t *testing.T) {
	db := setupDB(t)

	badSrv := newFeedServer(t, rustFeed)
	badSrv.Close() // A源不可达

	goodSrv := newFeedServer(t, rustFeed)

	createTopic(t, db, model.Topic{
		Name:     "source a",
		Source:   "v2ex",
		FeedURL:  badSrv.URL,
		Keywords: model.StringList{"rust"},
		IsActive: true,
	})
	createTopic(t, db, model.Topic{
		Name:     "source b",
		Source:   "nodeseek",
		FeedURL:  goodSrv.URL,
		Keywords: model.StringList{"rust"},
		IsActive: true,
	})

	svc := NewMonitorService(db, fetcher.New(2*time.Second), 2)
	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if report.TopicsChecked != 2 {
		t.Fatalf("expected 2 topics checked, got %d", report.TopicsChecked)
	}
	// A失败不影响B落库
	if report.PostsCreated != 1 {
		t.Fatalf("expected 1 post created, got %d", report.PostsCreated)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
	if report.Failures[0].Topic != "source a" {
		t.Fatalf("unexpected failure topic: %s", report.Failures[0].Topic)
	}

	var post model.Post
	if err := db.First(&post).Error; err != nil {
		t.Fatalf("load post: %v", err)
	}
	if post.UID != "nodeseek:https://www.v2ex.com/t/1001" {
		t.Fatalf("unexpected uid: %s", post.UID)
	}
}

func TestRunCycleMalformedFeed(t *testing.T) {
	db := setupDB(t)
	srv := newFeedServer(t, "definitely not a feed")

	createTopic(t, db, model.Topic{
		Name:     "broken feed",
		Source:   "linux.do",
		FeedURL:  srv.URL,
		IsActive: true,
	})

	svc := NewMonitorService(db, fetcher.New(5*time.Second), 1)
	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
}

func TestRunCycleSameUIDAcrossTopics(t *testing.T) {
	db := setupDB(t)
	srv := newFeedServer(t, rustFeed)

	// 同一来源的两个订阅,关键词不同,指向同一feed
	createTopic(t, db, model.Topic{
		Name:     "rust watch",
		Source:   "v2ex",
		FeedURL:  srv.URL,
		Keywords: model.StringList{"rust"},
		IsActive: true,
	})
	createTopic(t, db, model.Topic{
		Name:     "all posts",
		Source:   "v2ex",
		FeedURL:  srv.URL,
		IsActive: true,
	})

	svc := NewMonitorService(db, fetcher.New(5*time.Second), 1)
	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	// 标识键全表唯一:同一条目只会落库一次
	var count int64
	db.Model(&model.Post{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 unique posts, got %d", count)
	}
	if report.PostsCreated+report.Duplicates != 3 {
		t.Fatalf("expected created+duplicates=3, got %d+%d",
			report.PostsCreated, report.Duplicates)
	}
}

func TestRunCycleManyTopicsConcurrent(t *testing.T) {
	db := setupDB(t)
	srv := newFeedServer(t, rustFeed)

	for i := 0; i < 6; i++ {
		createTopic(t, db, model.Topic{
			Name:     fmt.Sprintf("topic-%d", i),
			Source:   "v2ex",
			FeedURL:  srv.URL,
			Keywords: model.StringList{"rust"},
			IsActive: true,
		})
	}

	svc := NewMonitorService(db, fetcher.New(5*time.Second), 4)
	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if report.TopicsChecked != 6 {
		t.Fatalf("expected 6 topics checked, got %d", report.TopicsChecked)
	}
	// 并发处理下唯一索引仍然只允许一条
	var count int64
	db.Model(&model.Post{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 unique post, got %d", count)
	}
}
