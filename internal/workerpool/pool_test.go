package workerpool

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestSubmitExecutesTasks 测试提交的任务都被执行
func TestSubmitExecutesTasks(t *testing.T) {
	p := New(4, 16, testLogger())
	defer p.Shutdown()

	var counter atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		ok := p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		})
		if !ok {
			t.Fatal("提交任务失败")
		}
	}

	wg.Wait()
	if counter.Load() != 10 {
		t.Errorf("执行任务数不匹配，期望: 10, 实际: %d", counter.Load())
	}
}

// TestTrySubmitSaturated 测试队列满时 TrySubmit 立即返回 false
func TestTrySubmitSaturated(t *testing.T) {
	p := New(1, 1, testLogger())
	defer p.Shutdown()

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	// 占住唯一的 worker
	p.Submit(func() {
		defer wg.Done()
		<-block
	})
	// 填满队列
	p.Submit(func() {})

	// 队列已满，非阻塞提交应立即失败
	if p.TrySubmit(func() {}) {
		t.Error("队列满时 TrySubmit 应返回 false")
	}

	close(block)
	wg.Wait()
}

// TestTaskPanicRecovered 测试任务 panic 不拖垮 worker
func TestTaskPanicRecovered(t *testing.T) {
	p := New(1, 4, testLogger())
	defer p.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	p.Submit(func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()

	// panic 后 worker 仍能处理后续任务
	done := make(chan struct{})
	p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("panic 后 worker 应继续处理任务")
	}
}
