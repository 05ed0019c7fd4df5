package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"forum-monitor/internal/logger"
	"forum-monitor/internal/service"
)

type Scheduler struct {
	cron    *cron.Cron
	monitor *service.MonitorService
	spec    string
	entryID cron.EntryID
}

func NewScheduler(monitor *service.MonitorService, spec string) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		monitor: monitor,
		spec:    spec,
	}
}

func (s *Scheduler) Start() error {
	// 抓取任务;前一轮未结束时与新一轮重叠是安全的,uid唯一索引兜底
	id, err := s.cron.AddFunc(s.spec, func() {
		report, err := s.monitor.RunCycle(context.Background())
		if err != nil {
			logger.Errorf("[cron] cycle aborted: %v", err)
			return
		}
		logger.Infof("[cron] cycle done: topics=%d fetched=%d matched=%d created=%d duplicates=%d failures=%d",
			report.TopicsChecked, report.EntriesFetched, report.EntriesMatched,
			report.PostsCreated, report.Duplicates, len(report.Failures))
	})
	if err != nil {
		return err
	}
	s.entryID = id

	s.cron.Start()
	logger.Infof("[cron] scheduler started (spec: %s)", s.spec)
	return nil
}

// GetNextFetchTime 获取下次抓取时间
func (s *Scheduler) GetNextFetchTime() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}
