package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type fakeLock struct {
	acquired  bool
	refreshes int
	loseAfter int
	released  int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Refresh(context.Context) (bool, error) {
	f.refreshes++
	if f.loseAfter > 0 && f.refreshes >= f.loseAfter {
		return false, nil
	}
	return f.acquired, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	return svc
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	svc := newTestService(t, lock, prometheus.NewRegistry(), success, failure)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)
	assert.Equal(t, 1, lock.refreshes)
	assert.Equal(t, 1, lock.released)
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	svc := newTestService(t, &fakeLock{acquired: true}, nil, job)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestServiceStopsWhenLockLost(t *testing.T) {
	first := &testJob{name: "first"}
	second := &testJob{name: "second"}
	svc := newTestService(t, &fakeLock{loseAfter: 1}, nil, first, second)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 1, first.runs)
	assert.Zero(t, second.runs)
}

func TestServiceRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := newTestService(t, &fakeLock{}, reg, &testJob{name: "ok"}, &testJob{name: "bad", err: errors.New("boom")})

	require.NoError(t, svc.runCycle(context.Background()))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	runs := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "storefront_job_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var job, result string
			for _, label := range m.GetLabel() {
				switch label.GetName() {
				case "job":
					job = label.GetValue()
				case "result":
					result = label.GetValue()
				}
			}
			runs[job+":"+result] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), runs["ok:success"])
	assert.Equal(t, float64(1), runs["bad:failure"])
	assert.Zero(t, runs["ok:failure"])
}

func TestServiceCountsSkippedCycles(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := newTestService(t, &fakeLock{acquired: true}, reg, &testJob{name: "job"})

	require.NoError(t, svc.runCycle(context.Background()))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var skipped float64
	for _, mf := range mfs {
		if mf.GetName() == "storefront_job_cycles_skipped_total" {
			skipped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), skipped)
}
